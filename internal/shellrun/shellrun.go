// Package shellrun wraps os/exec the way phenix/util/shell does: a small
// functional-options command builder plus a Shell interface so every
// external-tool adapter in this repo (tart, the provisioning runner,
// mutagen, ps) shells out through the same seam and can be faked in tests.
package shellrun

import (
	"bytes"
	"context"
	"os/exec"
)

// Option configures a single command invocation.
type Option func(*options)

type options struct {
	cmd   string
	args  []string
	stdin []byte
	dir   string
}

func newOptions(opts ...Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func Command(c string) Option { return func(o *options) { o.cmd = c } }
func Args(a ...string) Option { return func(o *options) { o.args = a } }
func Stdin(s []byte) Option   { return func(o *options) { o.stdin = s } }
func Dir(d string) Option     { return func(o *options) { o.dir = d } }

// Shell executes external commands. Real implementations shell out; tests
// substitute a fake that records invocations and returns canned output.
type Shell interface {
	CommandExists(cmd string) bool
	ExecCommand(ctx context.Context, opts ...Option) (stdout, stderr []byte, err error)
}

type execShell struct{}

// DefaultShell is the real, exec.Command-backed implementation.
var DefaultShell Shell = execShell{}

func (execShell) CommandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

func (execShell) ExecCommand(ctx context.Context, opts ...Option) ([]byte, []byte, error) {
	o := newOptions(opts...)

	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, o.cmd, o.args...)
	if o.dir != "" {
		cmd.Dir = o.dir
	}
	if o.stdin != nil {
		cmd.Stdin = bytes.NewReader(o.stdin)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.Bytes(), stderr.Bytes(), err
}

// Build applies opts and returns the resulting invocation fields. Fake
// Shell implementations in other packages' tests use this to decode what a
// caller asked for without reaching into this package's unexported state.
func Build(opts ...Option) (cmd string, args []string, stdin []byte, dir string) {
	o := newOptions(opts...)
	return o.cmd, o.args, o.stdin, o.dir
}

// CommandExists delegates to DefaultShell.
func CommandExists(cmd string) bool { return DefaultShell.CommandExists(cmd) }

// ExecCommand delegates to DefaultShell.
func ExecCommand(ctx context.Context, opts ...Option) ([]byte, []byte, error) {
	return DefaultShell.ExecCommand(ctx, opts...)
}
