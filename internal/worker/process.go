package worker

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pabot-dev/pabot/internal/discovery"
)

// GracePeriod is how long a soft-stopped subprocess is given to exit on its
// own before it is hard-killed.
const GracePeriod = 3 * time.Second

// Spawner starts a unit's subprocess and waits for it to finish, honoring a
// timeout. Exists as an interface so the scheduler can be tested without
// spawning real processes.
type Spawner interface {
	Spawn(ctx context.Context, unit *discovery.Unit, opts Options, callerID string, timeout time.Duration) Result
	SpawnGroup(ctx context.Context, group *discovery.Group, opts Options, callerID string, timeout time.Duration) Result
}

// ProcessSpawner runs units as real OS subprocesses.
type ProcessSpawner struct{}

// NewProcessSpawner returns the default Spawner.
func NewProcessSpawner() *ProcessSpawner { return &ProcessSpawner{} }

// Spawn launches the unit's runner subprocess, captures its output, and
// applies the soft-stop -> grace -> hard-kill sequence if timeout elapses.
func (ProcessSpawner) Spawn(ctx context.Context, unit *discovery.Unit, opts Options, callerID string, timeout time.Duration) Result {
	args := BuildArgs(unit, opts)
	outputDir := filepath.Join(opts.OutputRoot, strconv.Itoa(unit.QueueIndex))
	return runProcess(ctx, unit.ID, unit.QueueIndex, args, outputDir, BuildEnv(unit, opts, callerID), opts, timeout)
}

// SpawnGroup launches a Group's members as one sequential subprocess
// invocation, sharing a single output directory keyed on the first
// member's queue index.
func (ProcessSpawner) SpawnGroup(ctx context.Context, group *discovery.Group, opts Options, callerID string, timeout time.Duration) Result {
	if len(group.Members) == 0 {
		return Result{UnitID: group.ID, Err: &SpawnError{UnitID: group.ID, Err: context.Canceled}}
	}
	leader := group.Members[0]
	args := BuildGroupArgs(group, opts)
	outputDir := filepath.Join(opts.OutputRoot, strconv.Itoa(leader.QueueIndex))
	result := runProcess(ctx, group.ID, leader.QueueIndex, args, outputDir, BuildEnv(leader, opts, callerID), opts, timeout)
	result.UnitID = group.ID
	return result
}

func runProcess(ctx context.Context, id string, queueIndex int, args []string, outputDir string, env []string, opts Options, timeout time.Duration) Result {
	if len(args) == 0 {
		return Result{UnitID: id, QueueIndex: queueIndex, Err: &SpawnError{UnitID: id, Err: context.Canceled}}
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Result{UnitID: id, QueueIndex: queueIndex, Err: &SpawnError{UnitID: id, Err: err}}
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = append(os.Environ(), env...)
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{
			UnitID: id, QueueIndex: queueIndex,
			Started: started, Ended: time.Now(),
			Err: &SpawnError{UnitID: id, Err: err},
		}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timedOut bool
	var waitErr error

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case waitErr = <-done:
	case <-timeoutCh:
		timedOut = true
		softStop(cmd)
		select {
		case waitErr = <-done:
		case <-time.After(GracePeriod):
			hardKill(cmd)
			waitErr = <-done
		}
	case <-ctx.Done():
		hardKill(cmd)
		waitErr = <-done
	}

	ended := time.Now()
	exitCode := exitCodeOf(waitErr)

	result := Result{
		UnitID:     id,
		QueueIndex: queueIndex,
		ExitCode:   exitCode,
		Class:      ClassifyExit(exitCode),
		Started:    started,
		Ended:      ended,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		OutputDir:  outputDir,
		TimedOut:   timedOut,
	}

	if timedOut {
		result.Err = &WorkerTimeout{UnitID: id}
	} else if result.Class == ExitRunnerError {
		result.Err = &WorkerFailed{UnitID: id, ExitCode: exitCode}
	}

	return result
}

// exitCodeOf extracts the numeric exit code from a subprocess Wait error, or
// a negative sentinel if the process died from a signal.
func exitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !isExitError(err, &exitErr) {
		return -1
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return -1
	}
	return exitErr.ExitCode()
}

func isExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}
