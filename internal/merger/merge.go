package merger

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"sort"
)

// SuiteResult is the in-memory form of one worker's output.xml suite tree,
// reduced to what the merger needs: enough structure to consolidate
// without round-tripping every Robot Framework element this package
// doesn't care about. No XML-merging library appears anywhere in the
// example pack, and the format itself (Robot Framework's output.xml) has
// no Go binding in the corpus either, so this is stdlib encoding/xml
// rather than an ecosystem dependency.
type SuiteResult struct {
	QueueIndex int    `xml:"-"`
	Source     string `xml:"source,attr"`
	Name       string `xml:"name,attr"`
	Status     string `xml:"status,attr"`
	Attempt    int    `xml:"-"` // re-execution attempt number, 0 = first
	Variant    string `xml:"-"` // argument-file variant identifier, "" if the source has only one
	RawXML     []byte `xml:"-"`
}

// MergeError wraps a recoverable failure consolidating one worker's
// output, surfaced in the final report rather than aborting the whole run.
type MergeError struct {
	QueueIndex int
	Err        error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge queue_index=%d: %v", e.QueueIndex, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// sourceVariant groups re-executions of the same Source/Variant pair so
// Merge can collapse them to a single surviving attempt.
type sourceVariant struct {
	source  string
	variant string
}

// Merge consolidates a set of per-unit SuiteResults into one ordered list
// with each re-executed suite/test appearing exactly once: when the same
// Source and Variant were executed more than once (re-execution via
// --rerunfailed), only the latest Attempt survives and earlier attempts are
// discarded. Distinct argument-file Variants of the same Source are a
// different run, not a re-execution, so they are never collapsed into each
// other - both survive as separate entries of the returned list. Merge
// builds no combined parent element for them; each stays its own result.
func Merge(results []*SuiteResult) ([]*SuiteResult, []error) {
	groups := make(map[sourceVariant][]*SuiteResult)
	for _, r := range results {
		key := sourceVariant{source: r.Source, variant: r.Variant}
		groups[key] = append(groups[key], r)
	}

	var merged []*SuiteResult
	var errs []error

	keys := make([]sourceVariant, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].source != keys[j].source {
			return keys[i].source < keys[j].source
		}
		return keys[i].variant < keys[j].variant
	})

	for _, key := range keys {
		latest := groups[key][0]
		for _, r := range groups[key][1:] {
			if r.Attempt > latest.Attempt {
				latest = r
			}
		}
		if err := validate(latest); err != nil {
			errs = append(errs, &MergeError{QueueIndex: latest.QueueIndex, Err: err})
			continue
		}
		merged = append(merged, latest)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Source != merged[j].Source {
			return merged[i].Source < merged[j].Source
		}
		return merged[i].Variant < merged[j].Variant
	})

	return merged, errs
}

func validate(r *SuiteResult) error {
	if len(r.RawXML) == 0 {
		return fmt.Errorf("empty output for source %q", r.Source)
	}
	var probe struct {
		XMLName xml.Name `xml:"robot"`
	}
	if err := xml.Unmarshal(r.RawXML, &probe); err != nil {
		return fmt.Errorf("malformed output.xml for source %q: %w", r.Source, err)
	}
	return nil
}

// LoadSuiteResult reads a worker's output.xml from disk into a SuiteResult.
func LoadSuiteResult(path string, queueIndex, attempt int, source string) (*SuiteResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read output.xml %s: %w", path, err)
	}
	return &SuiteResult{
		QueueIndex: queueIndex,
		Source:     source,
		Status:     overallStatus(data),
		Attempt:    attempt,
		RawXML:     data,
	}, nil
}

// overallStatus scans an output.xml document for its first <status> element
// and returns its status attribute, which for a top-level suite is the
// overall pass/fail verdict Robot Framework recorded for the run. Returns
// "" if the document has no such element.
func overallStatus(raw []byte) string {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return ""
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "status" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "status" {
				return attr.Value
			}
		}
	}
}

// IsIdempotent reports whether merging results twice in a row produces an
// identical merged list, which Merge guarantees by construction (it never
// mutates its inputs and its ordering is a pure function of Source,
// Variant, and Attempt).
func IsIdempotent(results []*SuiteResult) bool {
	first, errs1 := Merge(results)
	second, errs2 := Merge(results)
	if len(errs1) != len(errs2) || len(first) != len(second) {
		return false
	}
	for i := range first {
		if first[i].Source != second[i].Source || first[i].Variant != second[i].Variant || first[i].Attempt != second[i].Attempt {
			return false
		}
	}
	return true
}
