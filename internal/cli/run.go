package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pabot-dev/pabot/internal/cli/tui"
	"github.com/pabot-dev/pabot/internal/config"
	"github.com/pabot-dev/pabot/internal/coordination"
	"github.com/pabot-dev/pabot/internal/discovery"
	"github.com/pabot-dev/pabot/internal/events"
	"github.com/pabot-dev/pabot/internal/merger"
	"github.com/pabot-dev/pabot/internal/plan"
	"github.com/pabot-dev/pabot/internal/scheduler"
	"github.com/pabot-dev/pabot/internal/stats"
	"github.com/pabot-dev/pabot/internal/worker"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	Processes             int
	Command               []string
	EndCommand            []string
	PabotLib              bool
	PabotLibHost          string
	PabotLibPort          int
	ProcessTimeout        time.Duration
	Shard                 string // "I/N"
	Artifacts             []string
	ArtifactsInSubfolders bool
	ResourceFile          string
	ArgumentFile          string
	PlanFile              string
	SuitesFrom            string
	Ordering              string
	TestLevelSplit        bool
	Include               []string
	Exclude               []string
	DryRun                bool
	Verbose               bool
	JSONEvents            bool
	NoTUI                 bool
	NoRebot               bool
	RerunFailed           bool
	OutputDir             string
	Paths                 []string
}

// Validate checks RunOptions for invalid combinations.
func (opts RunOptions) Validate() error {
	if opts.Processes <= 0 {
		return fmt.Errorf("processes must be greater than 0, got %d", opts.Processes)
	}
	if len(opts.Command) == 0 {
		return fmt.Errorf("runner command must not be empty (use --command)")
	}
	if opts.Shard != "" {
		if _, _, err := parseShard(opts.Shard); err != nil {
			return fmt.Errorf("invalid --shard: %w", err)
		}
	}
	return nil
}

func parseShard(s string) (i, n int, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected I/N, got %q", s)
	}
	i, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	n, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if n <= 0 || i < 1 || i > n {
		return 0, 0, fmt.Errorf("shard %q out of range", s)
	}
	return i, n, nil
}

// registerRunFlags adds flags to the run command.
func registerRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().IntVarP(&opts.Processes, "processes", "p", opts.Processes, "Number of parallel worker processes")
	cmd.Flags().StringSliceVar(&opts.Command, "command", opts.Command, "Runner command, e.g. --command robot")
	cmd.Flags().StringSliceVar(&opts.EndCommand, "end-command", opts.EndCommand, "Arguments appended after pabot's own flags, before the runner's own trailing args")
	cmd.Flags().BoolVar(&opts.PabotLib, "pabotlib", opts.PabotLib, "Start the in-process coordination server")
	cmd.Flags().StringVar(&opts.PabotLibHost, "pabotlibhost", opts.PabotLibHost, "Coordination server bind host")
	cmd.Flags().IntVar(&opts.PabotLibPort, "pabotlibport", opts.PabotLibPort, "Coordination server bind port")
	cmd.Flags().DurationVar(&opts.ProcessTimeout, "processtimeout", opts.ProcessTimeout, "Per-unit timeout, e.g. 30s (0 = no timeout)")
	cmd.Flags().StringVar(&opts.Shard, "shard", opts.Shard, "Run only shard I of N, format I/N")
	cmd.Flags().StringSliceVar(&opts.Artifacts, "artifacts", opts.Artifacts, "Artifact file extensions to collect")
	cmd.Flags().BoolVar(&opts.ArtifactsInSubfolders, "artifactsinsubfolders", opts.ArtifactsInSubfolders, "Recurse into subfolders when collecting artifacts")
	cmd.Flags().StringVar(&opts.ResourceFile, "resourcefile", opts.ResourceFile, "Path to a resource file defining shared value sets")
	cmd.Flags().StringVar(&opts.ArgumentFile, "argumentfile", opts.ArgumentFile, "Argument file passed through to each worker invocation")
	cmd.Flags().StringVar(&opts.PlanFile, "plan", opts.PlanFile, "Path to a pabot plan file (#DEPENDS/#WAIT/#SLEEP/groups)")
	cmd.Flags().StringVar(&opts.SuitesFrom, "suitesfrom", opts.SuitesFrom, "Reorder units using a prior output.xml (failed first, then slowest)")
	cmd.Flags().StringVar(&opts.Ordering, "ordering", opts.Ordering, "Path to an explicit ordering file")
	cmd.Flags().BoolVar(&opts.TestLevelSplit, "testlevelsplit", opts.TestLevelSplit, "Split suites into per-test units")
	cmd.Flags().StringSliceVar(&opts.Include, "include", opts.Include, "Include only units with these tags")
	cmd.Flags().StringSliceVar(&opts.Exclude, "exclude", opts.Exclude, "Exclude units with these tags")
	cmd.Flags().BoolVarP(&opts.DryRun, "dryrun", "n", opts.DryRun, "Print the resolved dispatch plan without running anything")
	cmd.Flags().BoolVar(&opts.Verbose, "verbose-summary", opts.Verbose, "Print a per-unit timing summary on completion")
	cmd.Flags().BoolVar(&opts.JSONEvents, "json-events", opts.JSONEvents, "Emit lifecycle events as JSON to stdout")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", opts.NoTUI, "Disable the interactive dispatch board")
	cmd.Flags().BoolVar(&opts.NoRebot, "no-rebot", opts.NoRebot, "Skip merged report generation")
	cmd.Flags().BoolVar(&opts.RerunFailed, "rerunfailed", opts.RerunFailed, "Re-execute failed units once more before merging; the later attempt wins")
	cmd.Flags().StringVar(&opts.OutputDir, "outputdir", opts.OutputDir, "Merged report output directory")
}

// NewRunCmd creates the run command.
func NewRunCmd(app *App) *cobra.Command {
	opts := RunOptions{
		Processes:    config.DefaultProcesses,
		PabotLib:     config.DefaultPabotLib,
		PabotLibHost: config.DefaultPabotLibHost,
		PabotLibPort: config.DefaultPabotLibPort,
		Artifacts:    append([]string{}, config.DefaultArtifactExtensions...),
		OutputDir:    config.DefaultOutputDir,
	}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Discover and run tests across parallel worker processes",
		Long: `run discovers the suite/test tree under the given paths (or a --plan
file), dispatches it across --processes parallel worker subprocesses, and
merges their output.xml into a single report.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Paths = args

			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}

			cfg, err := config.Load(wd)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyConfigDefaults(&opts, cfg, cmd)

			if err := opts.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(2)
			}

			return app.RunOrchestrator(cmd.Context(), opts)
		},
	}

	registerRunFlags(cmd, &opts)
	return cmd
}

// applyConfigDefaults fills in any flag the user didn't set explicitly from
// the loaded .pabotrc.yaml.
func applyConfigDefaults(opts *RunOptions, cfg *config.Config, cmd *cobra.Command) {
	if !cmd.Flags().Changed("processes") && cfg.Processes > 0 {
		opts.Processes = cfg.Processes
	}
	if !cmd.Flags().Changed("command") && len(cfg.Command) > 0 {
		opts.Command = cfg.Command
	}
	if !cmd.Flags().Changed("end-command") && len(cfg.EndCommand) > 0 {
		opts.EndCommand = cfg.EndCommand
	}
	if !cmd.Flags().Changed("pabotlibhost") && cfg.PabotLibHost != "" {
		opts.PabotLibHost = cfg.PabotLibHost
	}
	if !cmd.Flags().Changed("pabotlibport") && cfg.PabotLibPort > 0 {
		opts.PabotLibPort = cfg.PabotLibPort
	}
	if !cmd.Flags().Changed("processtimeout") {
		opts.ProcessTimeout = cfg.ProcessTimeoutDuration()
	}
	if !cmd.Flags().Changed("artifacts") && len(cfg.ArtifactExtensions) > 0 {
		opts.Artifacts = cfg.ArtifactExtensions
	}
	if !cmd.Flags().Changed("artifactsinsubfolders") {
		opts.ArtifactsInSubfolders = cfg.ArtifactsInSubfolders
	}
	if !cmd.Flags().Changed("resourcefile") && cfg.ResourceFile != "" {
		opts.ResourceFile = cfg.ResourceFile
	}
	if !cmd.Flags().Changed("testlevelsplit") {
		opts.TestLevelSplit = cfg.TestLevelSplit
	}
	if !cmd.Flags().Changed("ordering") && cfg.Ordering != "" {
		opts.Ordering = cfg.Ordering
	}
	if !cmd.Flags().Changed("no-rebot") {
		opts.NoRebot = cfg.NoRebot
	}
	if !cmd.Flags().Changed("outputdir") && cfg.OutputDir != "" {
		opts.OutputDir = cfg.OutputDir
	}
}

// RunResult summarizes one completed run for the CLI's final printout.
type RunResult struct {
	TotalUnits     int
	CompletedUnits int
	FailedUnits    int
	BlockedUnits   int
	Duration       time.Duration
}

// RunOrchestrator wires discovery, planning, coordination, scheduling, the
// worker pool, and the merger together into one run.
func (a *App) RunOrchestrator(ctx context.Context, opts RunOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := events.NewBus()

	handler := NewSignalHandler(cancel)
	handler.OnDraining(func() {
		bus.Publish(events.NewEvent(events.RunDraining, ""))
		fmt.Fprintln(os.Stderr, "\nDraining: shutting down gracefully...")
	})
	handler.Start()
	defer handler.Stop()

	start := time.Now()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	units, err := resolveUnits(ctx, opts, wd)
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}
	if len(units) == 0 {
		return fmt.Errorf("no units discovered for %v", opts.Paths)
	}

	entries, err := resolveEntries(opts, units)
	if err != nil {
		return fmt.Errorf("resolving plan failed: %w", err)
	}

	if opts.DryRun {
		return printDryRun(os.Stdout, entries)
	}

	useTUI := !opts.NoTUI && !opts.DryRun && term.IsTerminal(int(os.Stdout.Fd()))
	stopTUI := func(time.Duration) {}
	var tuiQuit chan struct{}
	var tuiBridge *tui.Bridge

	if useTUI {
		model := tui.NewModel(len(entries), opts.Processes)
		if a.verbose {
			model.ShowLogs = true
		}
		program := tea.NewProgram(model, tea.WithAltScreen())
		tuiBridge = tui.NewBridge(program)
		bus.Subscribe(tuiBridge.Handler())

		tuiDone := make(chan struct{})
		tuiQuit = make(chan struct{})
		var stopOnce sync.Once
		stopTUI = func(timeout time.Duration) {
			stopOnce.Do(func() {
				select {
				case <-tuiDone:
					return
				default:
				}
				program.Quit()
				if timeout <= 0 {
					<-tuiDone
					return
				}
				select {
				case <-tuiDone:
					return
				case <-time.After(timeout):
				}
				program.Kill()
				<-tuiDone
			})
		}

		go func() {
			defer close(tuiDone)
			finalModel, err := program.Run()
			if err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
				return
			}
			if m, ok := finalModel.(*tui.Model); ok && m.Quitting && !m.Done {
				close(tuiQuit)
			}
		}()
		handler.OnDraining(func() {
			stopTUI(2 * time.Second)
		})
		defer stopTUI(2 * time.Second)
	} else {
		bus.Subscribe(events.LogHandler(events.LogConfig{Writer: os.Stdout, IncludePayload: a.verbose}))
	}

	if opts.JSONEvents {
		bus.Subscribe(func(e events.Event) {
			line, err := json.Marshal(events.ToJSONEvent(e))
			if err != nil {
				return
			}
			fmt.Println(string(line))
		})
	}

	if tuiQuit != nil {
		go func() {
			select {
			case <-tuiQuit:
				fmt.Fprintln(os.Stderr, "\nQuit requested (q) - stopping orchestrator...")
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	registry := coordination.NewRegistry()
	if opts.ResourceFile != "" {
		rf, err := loadResourceFile(opts.ResourceFile)
		if err != nil {
			return fmt.Errorf("loading resource file: %w", err)
		}
		rf.LoadInto(registry)
	}

	var pabotLibURI string
	if opts.PabotLib {
		server := coordination.NewServer(fmt.Sprintf("%s:%d", opts.PabotLibHost, opts.PabotLibPort), registry)
		go func() {
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "coordination server: %v\n", err)
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer stopCancel()
			server.Stop(stopCtx)
		}()
		pabotLibURI = fmt.Sprintf("http://%s:%d", opts.PabotLibHost, opts.PabotLibPort)
	}

	workerOpts := worker.Options{
		Command:           opts.Command,
		EndCommand:        opts.EndCommand,
		OutputRoot:        opts.OutputDir,
		PabotLibURI:       pabotLibURI,
		NumberOfProcesses: opts.Processes,
		ArgumentFile:      opts.ArgumentFile,
		WorkingDir:        wd,
	}

	pool := worker.NewPool(workerOpts, worker.Deps{Events: bus, Spawner: worker.NewProcessSpawner()})
	loop := scheduler.NewLoop(pool, bus, opts.ProcessTimeout)

	runID := ulid.Make().String()
	bus.Publish(events.NewEvent(events.RunStarted, "").WithPayload(map[string]any{"run_id": runID, "unit_count": len(entries)}))
	results, skipped, runErr := loop.Run(ctx, entries)

	if opts.RerunFailed && runErr == nil {
		results = rerunFailed(ctx, pool, bus, opts.ProcessTimeout, units, results)
	}

	bus.Publish(events.NewEvent(events.RunCompleted, "").WithPayload(map[string]any{"run_id": runID}))

	if tuiBridge != nil {
		tuiBridge.SendDone()
		stopTUI(2 * time.Second)
	}

	statsRegistry := stats.NewRegistry()
	for _, r := range results {
		statsRegistry.Record(stats.UnitStat{
			UnitID:     r.UnitID,
			QueueIndex: r.QueueIndex,
			Started:    r.Started,
			Ended:      r.Ended,
			Passed:     r.Passed(),
			ExitCode:   r.ExitCode,
		})
	}

	if !opts.NoRebot {
		if mergeErr := mergeResults(results, opts); mergeErr != nil {
			fmt.Fprintf(os.Stderr, "merge: %v\n", mergeErr)
		}
	}

	summary := statsRegistry.Summarize()
	result := &RunResult{
		TotalUnits:     len(entries),
		CompletedUnits: summary.Passed,
		FailedUnits:    summary.Failed,
		BlockedUnits:   len(skipped),
		Duration:       time.Since(start),
	}

	fmt.Printf("\nRun complete (id=%s):\n", runID)
	fmt.Printf("  Total units:     %d\n", result.TotalUnits)
	fmt.Printf("  Passed:          %d\n", result.CompletedUnits)
	fmt.Printf("  Failed:          %d\n", result.FailedUnits)
	fmt.Printf("  Blocked:         %d\n", result.BlockedUnits)
	fmt.Printf("  Duration:        %s\n", result.Duration.Round(time.Millisecond))

	if a.verbose || opts.Verbose {
		for _, s := range statsRegistry.All() {
			fmt.Printf("  %-50s %8s  exit=%d\n", s.UnitID, s.Duration().Round(time.Millisecond), s.ExitCode)
		}
	}

	if runErr != nil {
		return runErr
	}
	if result.FailedUnits > 0 || result.BlockedUnits > 0 {
		return fmt.Errorf("%d unit(s) failed, %d blocked", result.FailedUnits, result.BlockedUnits)
	}
	return nil
}

func resolveUnits(ctx context.Context, opts RunOptions, wd string) ([]*discovery.Unit, error) {
	dopts := discovery.Options{
		RunnerCommand:  opts.Command,
		Paths:          opts.Paths,
		Include:        opts.Include,
		Exclude:        opts.Exclude,
		TestLevelSplit: opts.TestLevelSplit,
		ArgumentFile:   opts.ArgumentFile,
		WorkingDir:     wd,
	}

	cachePath := filepath.Join(wd, discovery.DefaultCacheFileName)
	units, err := discovery.Resolve(ctx, dopts, cachePath)
	if err != nil {
		return nil, err
	}

	if opts.SuitesFrom != "" {
		durations, failed, err := loadSuitesFromStats(opts.SuitesFrom)
		if err != nil {
			return nil, fmt.Errorf("--suitesfrom: %w", err)
		}
		units = discovery.OrderBySuitesFrom(units, durations, failed)
	}

	if opts.Shard != "" {
		units, err = applyShard(units, opts.Shard)
		if err != nil {
			return nil, err
		}
	}

	return units, nil
}

// loadSuitesFromStats reads prior timing/outcome from a single merged
// output.xml, the only artifact the Merger produces that --suitesfrom can
// reread.
func loadSuitesFromStats(path string) (durations map[string]float64, failed map[string]bool, err error) {
	result, loadErr := merger.LoadSuiteResult(path, 0, 0, path)
	if loadErr != nil {
		return nil, nil, loadErr
	}
	durations = map[string]float64{result.Source: 0}
	failed = map[string]bool{result.Source: result.Status == "FAIL"}
	return durations, failed, nil
}

func applyShard(units []*discovery.Unit, shard string) ([]*discovery.Unit, error) {
	i, n, err := parseShard(shard)
	if err != nil {
		return nil, err
	}
	var out []*discovery.Unit
	for idx, u := range units {
		if idx%n == i-1 {
			out = append(out, u)
		}
	}
	return out, nil
}

func loadResourceFile(path string) (*coordination.ResourceFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return coordination.ParseResourceFile(f)
}

func resolveEntries(opts RunOptions, units []*discovery.Unit) ([]*scheduler.Entry, error) {
	if opts.PlanFile == "" {
		entries := make([]*scheduler.Entry, 0, len(units))
		for _, u := range units {
			entries = append(entries, &scheduler.Entry{Unit: u})
		}
		return entries, nil
	}

	f, err := os.Open(opts.PlanFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	p, err := plan.Parse(f)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*discovery.Unit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}
	return scheduler.BuildEntries(p, byName)
}

func printDryRun(w *os.File, entries []*scheduler.Entry) error {
	fmt.Fprintf(w, "resolved dispatch plan (%d entries):\n", len(entries))
	for i, e := range entries {
		switch {
		case e.IsBarrier:
			fmt.Fprintf(w, "%3d. #WAIT\n", i)
		case e.Group != nil:
			fmt.Fprintf(w, "%3d. group %s (%d members)\n", i, e.Group.ID, len(e.Group.Members))
		default:
			fmt.Fprintf(w, "%3d. %s", i, e.Unit.ID)
			if len(e.Unit.DependsOn) > 0 {
				fmt.Fprintf(w, " depends_on=%s", strings.Join(e.Unit.DependsOn, ","))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}

// rerunFailed re-executes every unit whose first-pass result did not pass,
// one unit per subprocess with no barriers or dependencies, and returns the
// combined result set with the re-executions tagged Attempt=1 so merger.Merge
// picks them over the original failing attempt.
func rerunFailed(ctx context.Context, pool *worker.Pool, bus *events.Bus, timeout time.Duration, units []*discovery.Unit, results []worker.Result) []worker.Result {
	byID := make(map[string]*discovery.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}

	var rerun []*scheduler.Entry
	for _, r := range results {
		if r.Passed() {
			continue
		}
		u, ok := byID[r.UnitID]
		if !ok {
			continue // a failed group result has no single discovery.Unit to re-dispatch
		}
		rerun = append(rerun, &scheduler.Entry{Unit: u})
	}
	if len(rerun) == 0 {
		return results
	}

	fmt.Fprintf(os.Stderr, "rerunfailed: re-executing %d failed unit(s)\n", len(rerun))
	loop := scheduler.NewLoop(pool, bus, timeout)
	rerunResults, _, err := loop.Run(ctx, rerun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rerunfailed: %v\n", err)
	}

	out := make([]worker.Result, 0, len(results)+len(rerunResults))
	out = append(out, results...)
	for _, r := range rerunResults {
		r.Attempt = 1
		out = append(out, r)
	}
	return out
}

func mergeResults(results []worker.Result, opts RunOptions) error {
	artifactOpts := worker.ArtifactOptions{Extensions: opts.Artifacts, InSubfolders: opts.ArtifactsInSubfolders}
	mergedArtifactDir := filepath.Join(opts.OutputDir, "artifacts")

	var suiteResults []*merger.SuiteResult
	for _, r := range results {
		if r.OutputDir == "" {
			continue
		}
		outputXML := filepath.Join(r.OutputDir, "output.xml")
		sr, err := merger.LoadSuiteResult(outputXML, r.QueueIndex, r.Attempt, r.UnitID)
		if err != nil {
			continue
		}
		suiteResults = append(suiteResults, sr)

		artifacts, err := worker.CollectArtifacts(r.OutputDir, artifactOpts)
		if err == nil && len(artifacts) > 0 {
			if _, err := worker.CopyArtifacts(r.QueueIndex, r.OutputDir, mergedArtifactDir, artifacts); err != nil {
				fmt.Fprintf(os.Stderr, "copy artifacts for %s: %v\n", r.UnitID, err)
			}
		}
	}

	merged, errs := merger.Merge(suiteResults)
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "merge warning: %v\n", e)
	}

	return writeMergedReport(opts.OutputDir, merged)
}

func writeMergedReport(outputDir string, merged []*merger.SuiteResult) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}
	for _, sr := range merged {
		name := sanitizeFileName(sr.Source)
		if sr.Variant != "" {
			// distinct argument-file variants of the same Source are written
			// as separate files, so their filenames must not collide
			name += "__" + sanitizeFileName(sr.Variant)
		}
		dst := filepath.Join(outputDir, name+".xml")
		if err := os.WriteFile(dst, sr.RawXML, 0644); err != nil {
			return err
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}
