package tartrun

import (
	"os"
	"os/exec"
	"syscall"
)

// spawnDetached starts name(args...) in its own process group, writing
// combined stdout/stderr to logFile, and returns immediately without
// waiting. Grounded on cmd/minimega's re-exec/detach pattern: callers
// observe the child through the returned process and the runtime, never by
// blocking on it.
func spawnDetached(name string, args []string, logFile *os.File) (*os.Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	// Reap the child in the background when it exits, so it does not linger
	// as a zombie; nothing here blocks on it.
	go cmd.Wait()

	return cmd.Process, nil
}
