package merger

import (
	"path/filepath"
	"regexp"
	"strconv"
)

// PathMapping records where an artifact referenced from a worker's
// output.xml (a screenshot, a log attachment) was moved to during final
// report consolidation, so href/src references inside the XML can be
// rewritten to match.
type PathMapping struct {
	QueueIndex int
	From       string // path as recorded by the worker, relative to its own output dir
	To         string // path relative to the merged report's output dir
}

var hrefPattern = regexp.MustCompile(`(href|src)="([^"]+)"`)

// RewriteArtifactPaths replaces every href/src attribute value in raw that
// matches a recorded PathMapping's From with its corresponding To. Unknown
// references are left untouched rather than guessed at.
func RewriteArtifactPaths(raw []byte, mappings []PathMapping) []byte {
	lookup := make(map[string]string, len(mappings))
	for _, m := range mappings {
		lookup[m.From] = m.To
	}

	return hrefPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		sub := hrefPattern.FindSubmatch(match)
		attr, value := string(sub[1]), string(sub[2])
		if to, ok := lookup[value]; ok {
			return []byte(attr + `="` + to + `"`)
		}
		return match
	})
}

// BuildMapping computes the PathMapping for every artifact file collected
// from a worker's output directory into the merged report's shared
// artifact directory, namespaced by queue_index to avoid collisions
// between workers that produced same-named screenshots.
func BuildMapping(queueIndex int, artifacts []string, mergedArtifactDir string) []PathMapping {
	mappings := make([]PathMapping, 0, len(artifacts))
	for _, a := range artifacts {
		base := filepath.Base(a)
		to := filepath.Join(mergedArtifactDir, strconv.Itoa(queueIndex)+"-"+base)
		mappings = append(mappings, PathMapping{QueueIndex: queueIndex, From: base, To: to})
	}
	return mappings
}
