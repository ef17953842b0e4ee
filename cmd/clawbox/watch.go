package main

import (
	"path/filepath"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/syncevent"
	"github.com/joyshmitz/clawbox/internal/tartrun"
	"github.com/joyshmitz/clawbox/internal/watcher"
)

// watchVerb is the hidden subprocess verb the Watcher Supervisor re-execs
// the binary as. It is intercepted in PersistentPreRunE rather than
// constructing an Orchestrator, since it runs detached and outlives the
// invocation that spawned it.
const watchVerb = "_watch-vm"

func newWatchCmd() *cobra.Command {
	var stateDir string
	var pollSeconds int

	cmd := &cobra.Command{
		Use:    watchVerb + " <vm-name>",
		Short:  "Internal: watch a single VM and tear down its state when it stops",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vm := args[0]

			home, err := homedir.Dir()
			if err != nil {
				return err
			}

			runtime := tartrun.New()
			sync := mutagenrun.New()

			loop := &watcher.Loop{
				VM:          vm,
				WatchersDir: filepath.Join(stateDir, "watchers"),
				Runtime:     runtime,
				Sync:        sync,
				Locks:       lockmgr.New(home, runtime),
				Events:      syncevent.Open(filepath.Join(stateDir, "logs", "sync-events.jsonl"), 0),
				PollSeconds: pollSeconds,
			}

			return loop.Run()
		},
	}

	cmd.Flags().StringVar(&stateDir, "state-dir", "", "clawbox state directory")
	cmd.Flags().IntVar(&pollSeconds, "poll-seconds", 5, "liveness poll interval")

	return cmd
}
