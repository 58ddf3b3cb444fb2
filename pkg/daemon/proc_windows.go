//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

// processAlive relies on FindProcess, which opens a handle and fails for
// processes that no longer exist.
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = process.Release()
	return true
}

// detach is a no-op; the child keeps running because nothing waits on it.
func detach(*exec.Cmd) {}

// terminate kills pid. Windows has no SIGTERM, so queued results that
// were not flushed are lost; prefer stopping through the control socket.
func terminate(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return process.Kill()
}
