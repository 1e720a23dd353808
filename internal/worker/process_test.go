package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pabot-dev/pabot/internal/discovery"
)

func TestProcessSpawnerCapturesExitCodeAndOutput(t *testing.T) {
	unit := &discovery.Unit{ID: "login", Kind: discovery.KindSuite, Name: "Login", QueueIndex: 0}
	opts := Options{
		Command:    []string{"sh", "-c", "echo hello; exit 1"},
		EndCommand: nil,
		OutputRoot: t.TempDir(),
	}
	// sh -c ignores any appended selector args since they become $0, $1... to the subshell
	opts.Command = []string{"sh", "-c", "echo hello; exit 1", "--"}

	spawner := NewProcessSpawner()
	result := spawner.Spawn(context.Background(), unit, opts, "caller-1", 5*time.Second)

	require.NoError(t, result.Err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, ExitTestFailure, result.Class)
	assert.Contains(t, result.Stdout, "hello")
}

func TestProcessSpawnerKillsOnTimeout(t *testing.T) {
	unit := &discovery.Unit{ID: "slow", Kind: discovery.KindSuite, Name: "Slow", QueueIndex: 0}
	opts := Options{
		Command:    []string{"sh", "-c", "sleep 30", "--"},
		OutputRoot: t.TempDir(),
	}

	spawner := NewProcessSpawner()
	start := time.Now()
	result := spawner.Spawn(context.Background(), unit, opts, "caller-1", 50*time.Millisecond)

	assert.True(t, result.TimedOut)
	require.Error(t, result.Err)
	assert.Less(t, time.Since(start), GracePeriod+2*time.Second)
}

func TestProcessSpawnerReportsSpawnErrorForMissingBinary(t *testing.T) {
	unit := &discovery.Unit{ID: "bad", QueueIndex: 0}
	opts := Options{Command: []string{"/nonexistent/binary/pabot-test"}, OutputRoot: t.TempDir()}

	spawner := NewProcessSpawner()
	result := spawner.Spawn(context.Background(), unit, opts, "caller-1", time.Second)

	require.Error(t, result.Err)
	var spawnErr *SpawnError
	require.ErrorAs(t, result.Err, &spawnErr)
}
