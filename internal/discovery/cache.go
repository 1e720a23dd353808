package discovery

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// cacheHeaderLines is the number of fingerprint header lines that precede
// the ordered unit descriptors in a discovery cache file.
const cacheHeaderLines = 4

// DefaultCacheFileName is the name Resolve persists the discovery cache
// under in the working directory, matching the runner-native suite name
// cache file this package's cache stands in for.
const DefaultCacheFileName = ".pabotsuitenames"

// CacheFingerprint identifies the inputs that produced a DiscoveryCache, so
// a later run can tell whether the cache is still valid without re-running
// the external runner's dry-run discovery.
type CacheFingerprint struct {
	SuiteSource  string // resolved suite/data source argument
	RunnerArgs   string // joined runner arguments that affect discovery
	FlagsHash    string // combined hash of --include/--exclude tag filters
	DatafileHash string // hash of the --argumentfile contents, "" if none given
}

// DiscoveryCache is the flat, text round-trippable representation of a
// resolved Unit list plus the fingerprint it was discovered under.
type DiscoveryCache struct {
	Fingerprint CacheFingerprint
	Units       []*Unit
}

// WriteCache serializes the cache to path using a write-to-temp-then-rename
// so a reader never observes a partially written file.
func WriteCache(path string, cache *DiscoveryCache) error {
	var b strings.Builder

	fmt.Fprintln(&b, cache.Fingerprint.SuiteSource)
	fmt.Fprintln(&b, cache.Fingerprint.RunnerArgs)
	fmt.Fprintln(&b, cache.Fingerprint.FlagsHash)
	fmt.Fprintln(&b, cache.Fingerprint.DatafileHash)

	for _, u := range cache.Units {
		fmt.Fprintln(&b, formatUnitLine(u))
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("write discovery cache temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename discovery cache into place: %w", err)
	}
	return nil
}

// ReadCache parses a cache file previously written by WriteCache. It never
// runs the external test runner; the caller decides whether the returned
// fingerprint still matches the current invocation before trusting Units.
func ReadCache(path string) (*DiscoveryCache, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open discovery cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var header [cacheHeaderLines]string
	for i := 0; i < cacheHeaderLines; i++ {
		if !scanner.Scan() {
			return nil, fmt.Errorf("discovery cache %s: truncated header", path)
		}
		header[i] = scanner.Text()
	}

	cache := &DiscoveryCache{
		Fingerprint: CacheFingerprint{
			SuiteSource:  header[0],
			RunnerArgs:   header[1],
			FlagsHash:    header[2],
			DatafileHash: header[3],
		},
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		unit, err := parseUnitLine(line)
		if err != nil {
			return nil, fmt.Errorf("discovery cache %s: %w", path, err)
		}
		cache.Units = append(cache.Units, unit)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read discovery cache: %w", err)
	}

	return cache, nil
}

// Matches reports whether the cache was produced under the given
// fingerprint and can be trusted without re-discovery.
func (c *DiscoveryCache) Matches(fp CacheFingerprint) bool {
	return c.Fingerprint == fp
}

// formatUnitLine renders a Unit as one tab-separated record. Fields that
// can themselves contain tabs (Args, DependsOn) are comma-joined, which is
// safe because neither suite names nor unit IDs may contain commas in a
// dependency list position once resolved.
func formatUnitLine(u *Unit) string {
	return strings.Join([]string{
		u.ID,
		string(u.Kind),
		u.Name,
		u.Source,
		strings.Join(u.Args, ","),
		strings.Join(u.DependsOn, ","),
		strconv.FormatFloat(u.Sleep, 'g', -1, 64),
		strconv.Itoa(u.QueueIndex),
		u.GroupID,
	}, "\t")
}

func parseUnitLine(line string) (*Unit, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 9 {
		return nil, fmt.Errorf("malformed unit record (want 9 fields, got %d): %q", len(fields), line)
	}

	sleep, err := strconv.ParseFloat(fields[6], 64)
	if err != nil {
		return nil, fmt.Errorf("malformed sleep field %q: %w", fields[6], err)
	}
	queueIndex, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, fmt.Errorf("malformed queue_index field %q: %w", fields[7], err)
	}

	u := &Unit{
		ID:         fields[0],
		Kind:       UnitKind(fields[1]),
		Name:       fields[2],
		Source:     fields[3],
		Sleep:      sleep,
		QueueIndex: queueIndex,
		GroupID:    fields[8],
	}
	if fields[4] != "" {
		u.Args = strings.Split(fields[4], ",")
	}
	if fields[5] != "" {
		u.DependsOn = strings.Split(fields[5], ",")
	}
	return u, nil
}
