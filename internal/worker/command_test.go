package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pabot-dev/pabot/internal/discovery"
)

func TestBuildArgsSuiteSelector(t *testing.T) {
	unit := &discovery.Unit{ID: "login", Kind: discovery.KindSuite, Name: "Login", Args: []string{"-i", "smoke"}, QueueIndex: 2}
	opts := Options{Command: []string{"robot"}, OutputRoot: "/tmp/pabot_results"}

	args := BuildArgs(unit, opts)
	assert.Equal(t, []string{"robot", "--outputdir", "/tmp/pabot_results/2", "-i", "smoke", "--suite", "Login"}, args)
}

func TestBuildArgsTestSelectorAndEndCommand(t *testing.T) {
	unit := &discovery.Unit{ID: "t1", Kind: discovery.KindTest, Name: "Login Works", QueueIndex: 0}
	opts := Options{
		Command:    []string{"python", "-m", "robot.run"},
		EndCommand: []string{"tests/"},
		OutputRoot: "/tmp/out",
	}

	args := BuildArgs(unit, opts)
	assert.Equal(t, []string{
		"python", "-m", "robot.run",
		"--outputdir", "/tmp/out/0",
		"--test", "Login Works",
		"tests/",
	}, args)
}

func TestBuildArgsArgumentFile(t *testing.T) {
	unit := &discovery.Unit{ID: "t1", Kind: discovery.KindSuite, Name: "Suite", QueueIndex: 1}
	opts := Options{Command: []string{"robot"}, OutputRoot: "/tmp/out", ArgumentFile: "args1.txt"}

	args := BuildArgs(unit, opts)
	assert.Contains(t, args, "--argumentfile")
	assert.Contains(t, args, "args1.txt")
}

func TestBuildGroupArgsSharesOneOutputDir(t *testing.T) {
	group := &discovery.Group{ID: "g1", Members: []*discovery.Unit{
		{ID: "a", Kind: discovery.KindTest, Name: "A", QueueIndex: 1},
		{ID: "b", Kind: discovery.KindTest, Name: "B", QueueIndex: 1},
	}}
	opts := Options{Command: []string{"robot"}, OutputRoot: "/tmp/out"}

	args := BuildGroupArgs(group, opts)
	assert.Equal(t, []string{
		"robot", "--outputdir", "/tmp/out/1",
		"--test", "A", "--test", "B",
	}, args)
}

func TestBuildEnvInjectsPabotVariables(t *testing.T) {
	unit := &discovery.Unit{ID: "t1", QueueIndex: 3}
	opts := Options{PabotLibURI: "127.0.0.1:8270", ExecutionPoolID: 1, NumberOfProcesses: 4}

	env := BuildEnv(unit, opts, "caller-abc")
	assert.Contains(t, env, "PABOTQUEUEINDEX=3")
	assert.Contains(t, env, "PABOTLIBURI=127.0.0.1:8270")
	assert.Contains(t, env, "PABOTEXECUTIONPOOLID=1")
	assert.Contains(t, env, "PABOTNUMBEROFPROCESSES=4")
	assert.Contains(t, env, "CALLER_ID=caller-abc")
}
