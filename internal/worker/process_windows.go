//go:build windows

package worker

import "os/exec"

func setProcessGroup(cmd *exec.Cmd) {}

func softStop(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

func hardKill(cmd *exec.Cmd) {
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}
