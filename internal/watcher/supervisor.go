// Package watcher implements the Watcher Supervisor (this file) and the
// Watcher Loop (loop.go): the per-VM subprocess supervision and teardown
// state machine described in SPEC_FULL.md §4.3-4.4.
package watcher

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/shellrun"
	"github.com/joyshmitz/clawbox/internal/syncevent"
	"github.com/joyshmitz/clawbox/internal/tartrun"
)

// watchMarker is the token the supervisor looks for in a candidate
// process's command line to confirm it is one of ours.
const watchMarker = "_watch-vm"

const settleInterval = 300 * time.Millisecond
const defaultStopTimeout = 10 * time.Second

// Spawner starts the detached `_watch-vm` subprocess. Production code uses
// realSpawner (re-execs the running binary); tests substitute a fake that
// starts a stand-in child process instead of re-execing the binary.
type Spawner interface {
	Spawn(vm string, pollSeconds int, stateDir, logPath string) (pid int, err error)
}

// Supervisor guarantees exactly one live watcher subprocess per running VM.
type Supervisor struct {
	WatchersDir string
	LogsDir     string
	StateDir    string
	Shell       shellrun.Shell
	Runtime     tartrun.Runtime
	Locks       *lockmgr.Manager
	Events      *syncevent.Log
	Spawn       Spawner
}

func (s *Supervisor) shell() shellrun.Shell {
	if s.Shell != nil {
		return s.Shell
	}
	return shellrun.DefaultShell
}

// commandLineIdentifies shells to `ps -o command= -p <pid>` — macOS has no
// /proc, so this is the portable way to confirm a pid is actually one of
// our watchers before signaling it, mirroring how the teacher's bridge
// package probes OS-reported process state by shelling rather than parsing
// a synthetic procfs.
func (s *Supervisor) commandLineIdentifies(pid int, vm string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stdout, _, err := s.shell().ExecCommand(ctx,
		shellrun.Command("ps"),
		shellrun.Args("-o", "command=", "-p", strconv.Itoa(pid)),
	)
	if err != nil {
		return false
	}

	out := string(stdout)
	if !strings.Contains(out, watchMarker) {
		return false
	}
	for _, field := range strings.Fields(out) {
		if field == vm {
			return true
		}
	}
	return false
}

// isValidAndAlive reports whether rec's pid is alive and identifies itself
// as a watcher for rec.VMName.
func (s *Supervisor) isValidAndAlive(rec Record) bool {
	if rec.Pid <= 0 {
		return false
	}
	if !s.commandLineIdentifies(rec.Pid, rec.VMName) {
		return false
	}
	return processAlive(rec.Pid)
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Unix FindProcess always succeeds; signal 0 is the portable liveness probe.
	return proc.Signal(syscall.Signal(0)) == nil
}

// Start ensures a live watcher exists for vm, returning its pid. If a valid
// record already identifies a live watcher, that pid is returned unchanged.
func (s *Supervisor) Start(vm string, pollSeconds int) (int, error) {
	if rec, err := readRecord(s.WatchersDir, vm); err == nil && rec != nil {
		if s.isValidAndAlive(*rec) {
			return rec.Pid, nil
		}
	}

	logPath := filepath.Join(s.LogsDir, "watcher-"+vm+".log")

	pid, err := s.Spawn.Spawn(vm, pollSeconds, s.StateDir, logPath)
	if err != nil {
		return 0, clawerr.Wrap(clawerr.RuntimeExec, err, "could not start watcher for %s", vm)
	}

	time.Sleep(settleInterval)

	if !processAlive(pid) {
		tail := tailFile(logPath, 4096)
		return 0, clawerr.New(clawerr.RuntimeExec, "watcher for %s exited immediately: %s", vm, tail)
	}

	rec := Record{VMName: vm, Pid: pid, PollSeconds: pollSeconds, StartedAt: time.Now().UTC()}
	if err := writeRecord(s.WatchersDir, rec); err != nil {
		return 0, err
	}

	return pid, nil
}

// Stop signals the watcher for vm to exit and removes its record
// regardless of outcome. Returns false if no record existed.
func (s *Supervisor) Stop(vm string, timeout time.Duration) (bool, error) {
	rec, err := readRecord(s.WatchersDir, vm)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	defer removeRecord(s.WatchersDir, vm)

	if timeout <= 0 {
		timeout = defaultStopTimeout
	}

	if proc, err := os.FindProcess(rec.Pid); err == nil {
		proc.Signal(syscall.SIGTERM)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(rec.Pid) {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if proc, err := os.FindProcess(rec.Pid); err == nil {
		proc.Signal(syscall.SIGKILL)
	}

	return true, nil
}

// Reconcile removes stale watcher records and stops watchers whose VM is no
// longer reported running by the runtime, releasing that VM's locks either
// way.
func (s *Supervisor) Reconcile() error {
	records, err := listRecords(s.WatchersDir)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if !s.isValidAndAlive(rec) {
			removeRecord(s.WatchersDir, rec.VMName)
			if s.Locks != nil {
				s.Locks.ReleaseAllFor(rec.VMName)
			}
			continue
		}

		running, err := s.Runtime.VMRunning(rec.VMName)
		if err != nil {
			continue
		}
		if !running {
			s.Stop(rec.VMName, defaultStopTimeout)
			if s.Locks != nil {
				s.Locks.ReleaseAllFor(rec.VMName)
			}
		}
	}

	return nil
}

func tailFile(path string, maxBytes int64) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ""
	}

	size := info.Size()
	offset := int64(0)
	if size > maxBytes {
		offset = size - maxBytes
	}
	buf := make([]byte, size-offset)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return ""
	}
	return strings.TrimSpace(string(buf))
}

// realSpawner re-execs the currently running binary as `_watch-vm`.
type realSpawner struct{}

// NewRealSpawner returns the production Spawner.
func NewRealSpawner() Spawner { return realSpawner{} }

func (realSpawner) Spawn(vm string, pollSeconds int, stateDir, logPath string) (int, error) {
	self, err := os.Executable()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return 0, err
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, err
	}

	args := []string{watchMarker, vm, "--state-dir", stateDir, "--poll-seconds", strconv.Itoa(pollSeconds)}
	cmd := exec.Command(self, args...)
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		f.Close()
		return 0, err
	}

	go cmd.Wait()

	return cmd.Process.Pid, nil
}
