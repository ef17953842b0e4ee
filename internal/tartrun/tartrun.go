// Package tartrun is the duck-typed adapter onto the external VM runtime
// ("tart"). It defines the capability surface the rest of clawbox depends
// on ({vm_exists, vm_running, ip, clone, run_in_background, stop, delete,
// list_vms_json} per SPEC_FULL.md §9) as a Go interface, a real
// exec.Command-backed implementation grounded on internal/shellrun (itself
// grounded on phenix/util/shell), and an in-memory Fake for tests.
package tartrun

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/shellrun"
)

// VMInfo is one row of `tart list --format json`.
type VMInfo struct {
	Name    string `json:"Name"`
	Running bool   `json:"Running"`
}

// Process is a handle on a backgrounded `tart run` invocation.
type Process interface {
	// Pid returns the OS process id.
	Pid() int
	// Exited reports whether the process has already exited and, if so,
	// its exit code. A nil first return means "still running".
	Exited() (code *int, exited bool)
}

// Runtime is the capability surface clawbox needs from the VM runtime.
type Runtime interface {
	VMExists(name string) (bool, error)
	VMRunning(name string) (bool, error)
	IP(name string) (string, error)
	Clone(baseImage, name string) error
	RunInBackground(name string, args []string, logFile string) (Process, error)
	Stop(name string) error
	Delete(name string) error
	ListVMsJSON() ([]VMInfo, error)
}

const binary = "tart"

// Real is the exec.Command-backed implementation.
type Real struct {
	Shell shellrun.Shell
}

// New returns a Real adapter using the default shell.
func New() *Real {
	return &Real{Shell: shellrun.DefaultShell}
}

func (r *Real) shell() shellrun.Shell {
	if r.Shell != nil {
		return r.Shell
	}
	return shellrun.DefaultShell
}

// run shells out to tart and maps failures onto the taxonomy in
// SPEC_FULL.md §7: Missing-tool, else RuntimeExec with stderr (falling back
// to stdout when stderr is empty).
func (r *Real) run(ctx context.Context, args ...string) (string, error) {
	if !r.shell().CommandExists(binary) {
		return "", clawerr.New(clawerr.MissingTool, "Command not found: %s", binary)
	}

	stdout, stderr, err := r.shell().ExecCommand(ctx, shellrun.Command(binary), shellrun.Args(args...))
	if err != nil {
		if ee, ok := asExitError(err); ok {
			detail := strings.TrimSpace(string(stderr))
			if detail == "" {
				detail = strings.TrimSpace(string(stdout))
			}
			return "", clawerr.New(clawerr.RuntimeExec, "tart %s exited %d: %s", strings.Join(args, " "), ee, detail)
		}
		return "", clawerr.Wrap(clawerr.RuntimeExec, err, "could not run 'tart %s': %v", strings.Join(args, " "), err)
	}

	return string(stdout), nil
}

type exitCoder interface {
	ExitCode() int
}

func asExitError(err error) (int, bool) {
	if ec, ok := err.(exitCoder); ok {
		return ec.ExitCode(), true
	}
	return 0, false
}

func (r *Real) ListVMsJSON() ([]VMInfo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := r.run(ctx, "list", "--format", "json")
	if err != nil {
		return nil, err
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not parse tart list output")
	}

	arr, ok := raw.([]interface{})
	if !ok {
		return nil, clawerr.New(clawerr.ParseErr, "could not parse tart list output: expected a JSON list")
	}

	var vms []VMInfo
	for _, item := range arr {
		b, _ := json.Marshal(item)
		var v VMInfo
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not parse tart list output")
		}
		vms = append(vms, v)
	}

	return vms, nil
}

func (r *Real) VMExists(name string) (bool, error) {
	vms, err := r.ListVMsJSON()
	if err != nil {
		return false, err
	}
	for _, v := range vms {
		if v.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *Real) VMRunning(name string) (bool, error) {
	vms, err := r.ListVMsJSON()
	if err != nil {
		return false, err
	}
	for _, v := range vms {
		if v.Name == name {
			return v.Running, nil
		}
	}
	return false, nil
}

func (r *Real) IP(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := r.run(ctx, "ip", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Real) Clone(baseImage, name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	_, err := r.run(ctx, "clone", baseImage, name)
	return err
}

func (r *Real) Stop(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := r.run(ctx, "stop", name)
	return err
}

func (r *Real) Delete(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, err := r.run(ctx, "delete", name)
	return err
}

type realProcess struct {
	pid  int
	proc *os.Process
}

func (p *realProcess) Pid() int { return p.pid }

func (p *realProcess) Exited() (*int, bool) {
	// os.Process doesn't expose liveness directly on Unix without Wait;
	// signal 0 is the portable "is it still there" probe.
	err := p.proc.Signal(syscall.Signal(0))
	if err == nil {
		return nil, false
	}
	code := -1
	return &code, true
}

func (r *Real) RunInBackground(name string, args []string, logFile string) (Process, error) {
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, clawerr.Wrap(clawerr.Precondition, err, "could not open log file %s", logFile)
	}

	full := append([]string{"run", name}, args...)
	proc, err := spawnDetached(binary, full, f)
	if err != nil {
		f.Close()
		return nil, clawerr.Wrap(clawerr.RuntimeExec, err, "could not start 'tart run %s'", name)
	}

	return &realProcess{pid: proc.Pid, proc: proc}, nil
}

var _ Runtime = (*Real)(nil)
