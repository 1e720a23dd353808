package worker

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pabot-dev/pabot/internal/discovery"
)

// Options configures how every unit's subprocess is assembled and launched.
type Options struct {
	// Command is the base runner invocation. If EndCommand is non-empty,
	// the unit's own args are spliced between Command and EndCommand
	// (the --command ... --end-command form); otherwise they're appended.
	Command    []string
	EndCommand []string

	OutputRoot        string // parent dir; each unit gets OutputRoot/<queue_index>
	PabotLibURI       string // advertised coordination server address
	ExecutionPoolID   int
	NumberOfProcesses int

	ArgumentFile string // path to this unit's --argumentfile, if any

	WorkingDir string
}

// BuildArgs assembles the full argv for one unit's subprocess.
func BuildArgs(unit *discovery.Unit, opts Options) []string {
	outputDir := filepath.Join(opts.OutputRoot, strconv.Itoa(unit.QueueIndex))

	var synthesized []string
	synthesized = append(synthesized, "--outputdir", outputDir)
	if opts.ArgumentFile != "" {
		synthesized = append(synthesized, "--argumentfile", opts.ArgumentFile)
	}
	synthesized = append(synthesized, unit.Args...)
	synthesized = append(synthesized, selectorFlag(unit), unit.Name)

	if len(opts.EndCommand) == 0 {
		return append(append([]string{}, opts.Command...), synthesized...)
	}

	args := make([]string, 0, len(opts.Command)+len(synthesized)+len(opts.EndCommand))
	args = append(args, opts.Command...)
	args = append(args, synthesized...)
	args = append(args, opts.EndCommand...)
	return args
}

// BuildGroupArgs assembles the argv for a Group: members share one
// subprocess and one output directory, each contributing its own selector
// flag so the runner executes them in the listed order within that single
// invocation.
func BuildGroupArgs(group *discovery.Group, opts Options) []string {
	if len(group.Members) == 0 {
		return nil
	}
	outputDir := filepath.Join(opts.OutputRoot, strconv.Itoa(group.Members[0].QueueIndex))

	var synthesized []string
	synthesized = append(synthesized, "--outputdir", outputDir)
	if opts.ArgumentFile != "" {
		synthesized = append(synthesized, "--argumentfile", opts.ArgumentFile)
	}
	for _, m := range group.Members {
		synthesized = append(synthesized, m.Args...)
		synthesized = append(synthesized, selectorFlag(m), m.Name)
	}

	if len(opts.EndCommand) == 0 {
		return append(append([]string{}, opts.Command...), synthesized...)
	}

	args := make([]string, 0, len(opts.Command)+len(synthesized)+len(opts.EndCommand))
	args = append(args, opts.Command...)
	args = append(args, synthesized...)
	args = append(args, opts.EndCommand...)
	return args
}

// selectorFlag returns the runner flag used to target this unit by kind.
func selectorFlag(unit *discovery.Unit) string {
	if unit.Kind == discovery.KindTest {
		return "--test"
	}
	return "--suite"
}

// BuildEnv assembles the environment variables injected into a unit's
// subprocess, in addition to the process's inherited environment.
func BuildEnv(unit *discovery.Unit, opts Options, callerID string) []string {
	return []string{
		fmt.Sprintf("PABOTQUEUEINDEX=%d", unit.QueueIndex),
		fmt.Sprintf("PABOTLIBURI=%s", opts.PabotLibURI),
		fmt.Sprintf("PABOTEXECUTIONPOOLID=%d", opts.ExecutionPoolID),
		fmt.Sprintf("PABOTNUMBEROFPROCESSES=%d", opts.NumberOfProcesses),
		fmt.Sprintf("CALLER_ID=%s", callerID),
	}
}
