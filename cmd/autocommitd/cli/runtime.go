// Package cli implements the command surface: the stable contract the
// menu-bar UI (an external collaborator, out of scope for this core)
// drives the engine through. Every subcommand either talks to a
// supervisor it spins up itself (start) or opens the store and git
// directly for a single operation (add/remove/list/status), exposing the
// command surface directly rather than over an RPC/stdio channel to an
// already-running process.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shadowgit/autocommitd/cmd/autocommitd/paths"
)

// runtimeFileName holds the running engine's pid and start time, written
// by `start` and removed on clean shutdown. `stop` and `status` read it
// to find and describe the running process; its absence means no engine
// is currently running.
const runtimeFileName = "autocommitd.runtime.json"

type runtimeInfo struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
}

func runtimeFilePath() (string, error) {
	dir, err := paths.StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, runtimeFileName), nil
}

func writeRuntimeInfo(pid int, startedAt time.Time) error {
	path, err := runtimeFilePath()
	if err != nil {
		return err
	}
	data, err := json.Marshal(runtimeInfo{PID: pid, StartedAt: startedAt})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func readRuntimeInfo() (runtimeInfo, bool) {
	path, err := runtimeFilePath()
	if err != nil {
		return runtimeInfo{}, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return runtimeInfo{}, false
	}
	var info runtimeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return runtimeInfo{}, false
	}
	return info, true
}

func removeRuntimeInfo() {
	path, err := runtimeFilePath()
	if err != nil {
		return
	}
	_ = os.Remove(path)
}

// processAlive reports whether pid refers to a live process, by sending
// the null signal (signal 0), which performs existence/permission checks
// without actually delivering anything.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func formatUptime(d time.Duration) string {
	return fmt.Sprintf("%d", int64(d.Seconds()))
}
