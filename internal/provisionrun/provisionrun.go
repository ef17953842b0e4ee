// Package provisionrun is the duck-typed adapter onto the external
// configuration-management runner ("ansible-playbook" style). Mirrors
// internal/tartrun's shape: an interface, an exec.Command-backed Real
// implementation over internal/shellrun, and an in-memory Fake for tests.
package provisionrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/shellrun"
)

// Options carries the feature flags passed to the playbook as
// clawbox_enable_* extra-vars.
type Options struct {
	Playwright    bool
	Tailscale     bool
	SignalCli     bool
	SignalPayload bool
}

func (o Options) extraVars() string {
	return fmt.Sprintf(
		"clawbox_enable_playwright=%t clawbox_enable_tailscale=%t clawbox_enable_signal_cli=%t clawbox_enable_signal_payload=%t",
		o.Playwright, o.Tailscale, o.SignalCli, o.SignalPayload,
	)
}

// Runner is the capability surface clawbox needs from the provisioning
// runner.
type Runner interface {
	Provision(ctx context.Context, inventoryHost string, opts Options) error
}

const binary = "ansible-playbook"

// Real shells out to ansible-playbook against a generated inventory line
// for the single target VM.
type Real struct {
	Shell        shellrun.Shell
	PlaybookPath string
	AnsibleDir   string
}

func New(ansibleDir, playbookPath string) *Real {
	return &Real{Shell: shellrun.DefaultShell, PlaybookPath: playbookPath, AnsibleDir: ansibleDir}
}

func (r *Real) shell() shellrun.Shell {
	if r.Shell != nil {
		return r.Shell
	}
	return shellrun.DefaultShell
}

func (r *Real) Provision(ctx context.Context, inventoryHost string, opts Options) error {
	if !r.shell().CommandExists(binary) {
		return clawerr.New(clawerr.MissingTool, "Command not found: %s", binary)
	}

	args := []string{
		r.PlaybookPath,
		"-i", inventoryHost + ",",
		"--extra-vars", opts.extraVars(),
	}

	stdout, stderr, err := r.shell().ExecCommand(ctx,
		shellrun.Command(binary),
		shellrun.Args(args...),
		shellrun.Dir(r.AnsibleDir),
	)
	if err != nil {
		detail := strings.TrimSpace(string(stderr))
		if detail == "" {
			detail = strings.TrimSpace(string(stdout))
		}
		return clawerr.New(clawerr.RuntimeExec, "Provisioning failed.")
	}

	return nil
}

var _ Runner = (*Real)(nil)

// Fake is an in-memory Runner for tests.
type Fake struct {
	// Calls records every invocation, in order, for assertions.
	Calls []FakeCall
	// FailNext, when true, makes the next call fail once and resets.
	FailNext bool
	// MissingBinary simulates ansible-playbook not being installed.
	MissingBinary bool
	// Delay simulates provisioning taking observable wall-clock time, for
	// tests that assert ordering around it; zero by default.
	Delay time.Duration
}

// FakeCall is one recorded Provision invocation.
type FakeCall struct {
	InventoryHost string
	Opts          Options
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) Provision(ctx context.Context, inventoryHost string, opts Options) error {
	if f.MissingBinary {
		return clawerr.New(clawerr.MissingTool, "Command not found: %s", binary)
	}
	if f.FailNext {
		f.FailNext = false
		return clawerr.New(clawerr.RuntimeExec, "Provisioning failed.")
	}

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.Calls = append(f.Calls, FakeCall{InventoryHost: inventoryHost, Opts: opts})
	return nil
}

var _ Runner = (*Fake)(nil)
