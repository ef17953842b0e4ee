package watcher

import (
	"context"
	"fmt"

	"github.com/joyshmitz/clawbox/internal/shellrun"
)

// fakePsShell answers `ps -o command= -p <pid>` lookups from a map the test
// populates directly, so commandLineIdentifies can be exercised without a
// real OS process.
type fakePsShell struct {
	commandLines map[int]string
}

func newFakePsShell() *fakePsShell {
	return &fakePsShell{commandLines: map[int]string{}}
}

func (f *fakePsShell) CommandExists(cmd string) bool { return true }

func (f *fakePsShell) ExecCommand(ctx context.Context, opts ...shellrun.Option) ([]byte, []byte, error) {
	cmd, args, _, _ := shellrun.Build(opts...)

	if cmd != "ps" {
		return nil, nil, fmt.Errorf("fakePsShell: unexpected command %q", cmd)
	}

	pid := 0
	for i, a := range args {
		if a == "-p" && i+1 < len(args) {
			fmt.Sscanf(args[i+1], "%d", &pid)
		}
	}

	line, ok := f.commandLines[pid]
	if !ok {
		return nil, []byte("no such process"), fmt.Errorf("no such process")
	}
	return []byte(line), nil, nil
}
