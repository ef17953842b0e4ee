// Package mutagenrun is the duck-typed adapter onto the external
// bidirectional file synchronizer ("mutagen" style). Mirrors
// internal/tartrun's shape: interface + exec.Command Real + in-memory Fake.
package mutagenrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/shellrun"
)

// SessionSpec is one requested host<->guest sync session, built from the
// host paths currently locked for a VM.
type SessionSpec struct {
	Kind          string
	HostPath      string
	GuestPath     string
	IgnoreVCS     bool
	IgnoredPaths  []string
	ReadyRequired bool
}

// Label is the selector used for every session belonging to one VM.
func Label(vm string) string {
	return fmt.Sprintf("clawbox.vm=%s", vm)
}

// Guest mount paths for the three sync kinds clawbox supports. Centralized
// here since both session creation (internal/orchestrator) and the
// guest-side mount-status probe (internal/status) must agree on them.
const (
	GuestOpenclawSource  = "/Users/vm/openclaw-source"
	GuestOpenclawPayload = "/Users/vm/openclaw-payload"
	GuestSignalPayload   = "/Users/vm/signal-payload"
)

// Sync is the capability surface clawbox needs from the synchronizer.
type Sync interface {
	// Create starts one session per spec, two-way-resolved, labeled for vm.
	Create(ctx context.Context, vm, sshAlias string, specs []SessionSpec) error
	// Flush waits for in-flight sync activity for every session matching
	// the label selector to settle.
	Flush(ctx context.Context, labelSelector string) error
	// List returns the raw session listing for the label selector, used
	// both for status reporting and sync-readiness diagnostics.
	List(ctx context.Context, labelSelector string) ([]string, error)
	// Terminate tears down every session matching the label selector.
	Terminate(ctx context.Context, labelSelector string) error
}

const binary = "mutagen"

type Real struct {
	Shell shellrun.Shell
}

func New() *Real {
	return &Real{Shell: shellrun.DefaultShell}
}

func (r *Real) shell() shellrun.Shell {
	if r.Shell != nil {
		return r.Shell
	}
	return shellrun.DefaultShell
}

func (r *Real) run(ctx context.Context, args ...string) (string, error) {
	if !r.shell().CommandExists(binary) {
		return "", clawerr.New(clawerr.MissingTool, "Command not found: %s", binary)
	}

	stdout, stderr, err := r.shell().ExecCommand(ctx, shellrun.Command(binary), shellrun.Args(args...))
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return "", clawerr.New(clawerr.RuntimeExec, "mutagen %s exited: %s", strings.Join(args, " "), detail)
	}

	return string(stdout), nil
}

func (r *Real) Create(ctx context.Context, vm, sshAlias string, specs []SessionSpec) error {
	for _, s := range specs {
		args := []string{
			"sync", "create",
			s.HostPath,
			fmt.Sprintf("%s:%s", sshAlias, s.GuestPath),
			"--sync-mode", "two-way-resolved",
			"--label", fmt.Sprintf("clawbox.vm=%s", vm),
			"--name", fmt.Sprintf("clawbox-%s-%s", vm, s.Kind),
		}
		if s.IgnoreVCS {
			args = append(args, "--ignore-vcs")
		}
		for _, p := range s.IgnoredPaths {
			args = append(args, "--ignore", p)
		}
		if _, err := r.run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

func (r *Real) Flush(ctx context.Context, labelSelector string) error {
	_, err := r.run(ctx, "sync", "flush", "--label-selector", labelSelector)
	return err
}

func (r *Real) List(ctx context.Context, labelSelector string) ([]string, error) {
	out, err := r.run(ctx, "sync", "list", "--label-selector", labelSelector)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (r *Real) Terminate(ctx context.Context, labelSelector string) error {
	_, err := r.run(ctx, "sync", "terminate", "--label-selector", labelSelector)
	return err
}

var _ Sync = (*Real)(nil)

// Fake is an in-memory Sync for tests.
type Fake struct {
	sessions map[string][]SessionSpec // vm -> specs
	FailNext map[string]error
}

func NewFake() *Fake {
	return &Fake{sessions: map[string][]SessionSpec{}}
}

func vmFromLabel(labelSelector string) string {
	return strings.TrimPrefix(labelSelector, "clawbox.vm=")
}

func (f *Fake) fail(method string) error {
	if f.FailNext != nil {
		if err, ok := f.FailNext[method]; ok {
			delete(f.FailNext, method)
			return err
		}
	}
	return nil
}

func (f *Fake) Create(ctx context.Context, vm, sshAlias string, specs []SessionSpec) error {
	if err := f.fail("Create"); err != nil {
		return err
	}
	f.sessions[vm] = append(f.sessions[vm], specs...)
	return nil
}

func (f *Fake) Flush(ctx context.Context, labelSelector string) error {
	return f.fail("Flush")
}

func (f *Fake) List(ctx context.Context, labelSelector string) ([]string, error) {
	if err := f.fail("List"); err != nil {
		return nil, err
	}
	vm := vmFromLabel(labelSelector)
	var lines []string
	for _, s := range f.sessions[vm] {
		lines = append(lines, fmt.Sprintf("clawbox-%s-%s: %s -> %s", vm, s.Kind, s.HostPath, s.GuestPath))
	}
	return lines, nil
}

func (f *Fake) Terminate(ctx context.Context, labelSelector string) error {
	if err := f.fail("Terminate"); err != nil {
		return err
	}
	vm := vmFromLabel(labelSelector)
	delete(f.sessions, vm)
	return nil
}

var _ Sync = (*Fake)(nil)
