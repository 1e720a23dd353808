package discovery

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Runner executes the external test runner in dry-run/list mode so
// Discover can learn the suite tree without running any test.
type Runner interface {
	Exec(ctx context.Context, dir string, args ...string) (string, error)
}

// osRunner shells out via exec.CommandContext, capturing stdout/stderr into
// buffers rather than letting output escape to the terminal.
type osRunner struct{}

func (osRunner) Exec(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s: %w (stderr: %s)", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

var defaultRunner Runner = osRunner{}

// DefaultRunner returns the package-level Runner, swappable in tests.
func DefaultRunner() Runner { return defaultRunner }

// SetDefaultRunner overrides the package-level Runner; tests restore it.
func SetDefaultRunner(r Runner) { defaultRunner = r }

// Options controls how Discover resolves the suite tree into Units.
type Options struct {
	RunnerCommand   []string // base command, e.g. []string{"robot"}
	Paths           []string // suite/data sources passed to the runner
	Include         []string // --include tag patterns
	Exclude         []string // --exclude tag patterns
	TestLevelSplit  bool     // expand suites into per-test Units
	ArgumentFile    string   // --argumentfile path, if any; part of the cache fingerprint
	WorkingDir      string
}

// Discover invokes the runner's dry-run listing and resolves it into an
// ordered Unit slice; duplicate listing entries are not merged. Every unit
// gets its own QueueIndex, its position in that slice. It never consults or writes a
// DiscoveryCache; that is the caller's responsibility (see Resolve).
func Discover(ctx context.Context, opts Options) ([]*Unit, error) {
	listing, err := runDryRun(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("discovery dry-run: %w", err)
	}

	entries := parseDryRunListing(listing)
	entries = filterByTags(entries, opts.Include, opts.Exclude)

	var units []*Unit
	for _, e := range entries {
		if opts.TestLevelSplit && len(e.tests) > 0 {
			for _, t := range e.tests {
				units = append(units, &Unit{
					ID:         e.source + "::" + t,
					Kind:       KindTest,
					Name:       t,
					Source:     e.source,
					Args:       []string{"--test", t},
					QueueIndex: len(units),
				})
			}
			continue
		}
		units = append(units, &Unit{
			ID:         e.source,
			Kind:       KindSuite,
			Name:       e.name,
			Source:     e.source,
			QueueIndex: len(units),
		})
	}

	return units, nil
}

// runDryRun shells out to the configured runner in --dryrun mode, which
// validates arguments and enumerates the suite tree without
// executing any test.
func runDryRun(ctx context.Context, opts Options) (string, error) {
	if len(opts.RunnerCommand) == 0 {
		return "", fmt.Errorf("no runner command configured")
	}

	args := append([]string{}, opts.RunnerCommand...)
	args = append(args, "--dryrun")
	for _, tag := range opts.Include {
		args = append(args, "--include", tag)
	}
	for _, tag := range opts.Exclude {
		args = append(args, "--exclude", tag)
	}
	args = append(args, opts.Paths...)

	return DefaultRunner().Exec(ctx, opts.WorkingDir, args...)
}

type dryRunEntry struct {
	source string
	name   string
	tags   []string
	tests  []string
}

// parseDryRunListing interprets the runner's textual suite listing. Real
// runners emit one "SOURCE\tNAME\tTAGS\tTESTS" line per leaf suite; this
// keeps the parser independent of any one runner's native log format.
func parseDryRunListing(output string) []dryRunEntry {
	var entries []dryRunEntry
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			continue
		}
		e := dryRunEntry{source: fields[0], name: fields[1]}
		if len(fields) > 2 && fields[2] != "" {
			e.tags = strings.Split(fields[2], ",")
		}
		if len(fields) > 3 && fields[3] != "" {
			e.tests = strings.Split(fields[3], ",")
		}
		entries = append(entries, e)
	}
	return entries
}

func filterByTags(entries []dryRunEntry, include, exclude []string) []dryRunEntry {
	if len(include) == 0 && len(exclude) == 0 {
		return entries
	}

	excludeSet := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		excludeSet[strings.ToLower(t)] = true
	}
	includeSet := make(map[string]bool, len(include))
	for _, t := range include {
		includeSet[strings.ToLower(t)] = true
	}

	var filtered []dryRunEntry
	for _, e := range entries {
		if hasAnyTag(e.tags, excludeSet) {
			continue
		}
		if len(includeSet) > 0 && !hasAnyTag(e.tags, includeSet) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func hasAnyTag(tags []string, set map[string]bool) bool {
	for _, t := range tags {
		if set[strings.ToLower(t)] {
			return true
		}
	}
	return false
}

// OrderBySuitesFrom reorders units so suites that failed or ran longest in
// a prior output.xml come first, per --suitesfrom semantics.
func OrderBySuitesFrom(units []*Unit, durations map[string]float64, failed map[string]bool) []*Unit {
	ordered := append([]*Unit{}, units...)
	sort.SliceStable(ordered, func(i, j int) bool {
		fi, fj := failed[ordered[i].ID], failed[ordered[j].ID]
		if fi != fj {
			return fi
		}
		return durations[ordered[i].ID] > durations[ordered[j].ID]
	})
	for i, u := range ordered {
		u.QueueIndex = i
	}
	return ordered
}

// Fingerprint builds the CacheFingerprint for the given invocation so a
// cached run can be validated without re-running dry-run discovery. The tag
// filters collapse into one combined hash, and the --argumentfile contents
// (when given) are hashed too, so editing an argument file invalidates a
// cache that only ever looked at tags and suite paths before.
func Fingerprint(opts Options) CacheFingerprint {
	return CacheFingerprint{
		SuiteSource:  strings.Join(opts.Paths, ","),
		RunnerArgs:   strings.Join(opts.RunnerCommand, " "),
		FlagsHash:    hashString(strings.Join(opts.Include, ",") + "|" + strings.Join(opts.Exclude, ",")),
		DatafileHash: hashDatafile(opts.ArgumentFile),
	}
}

// hashString returns the hex sha256 digest of s.
func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// hashDatafile returns the hex sha256 digest of path's contents, or "" if
// path is empty or unreadable (treated as "no argument file" rather than a
// fatal discovery error).
func hashDatafile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return hashString(string(data))
}

// Resolve returns Units from cachePath if its fingerprint matches the
// current invocation, otherwise re-runs Discover and refreshes the cache.
func Resolve(ctx context.Context, opts Options, cachePath string) ([]*Unit, error) {
	fp := Fingerprint(opts)

	if cachePath != "" {
		if cache, err := ReadCache(cachePath); err == nil && cache.Matches(fp) {
			return cache.Units, nil
		}
	}

	units, err := Discover(ctx, opts)
	if err != nil {
		return nil, err
	}

	if cachePath != "" {
		cache := &DiscoveryCache{Fingerprint: fp, Units: units}
		if err := WriteCache(cachePath, cache); err != nil {
			return nil, fmt.Errorf("write discovery cache: %w", err)
		}
	}

	return units, nil
}
