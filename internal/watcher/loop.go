package watcher

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joyshmitz/clawbox/internal/lockmgr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/syncevent"
	"github.com/joyshmitz/clawbox/internal/tartrun"
	"github.com/joyshmitz/clawbox/pkg/clawlog"
)

// confirmThreshold is N: the number of consecutive not-running polls
// required before the loop moves WATCHING -> TEARING_DOWN. A single
// positive "running" observation resets the counter to zero.
const confirmThreshold = 3

const defaultPollInterval = 5 * time.Second

type loopState int

const (
	stateWatching loopState = iota
	stateTearingDown
	stateDone
)

// Loop is the body of `_watch-vm`: it polls the runtime for vm's liveness
// and, once confirmed not-running, tears down derived state exactly once.
type Loop struct {
	VM          string
	WatchersDir string
	Runtime     tartrun.Runtime
	Sync        mutagenrun.Sync
	Locks       *lockmgr.Manager
	Events      *syncevent.Log
	PollSeconds int
}

// pollInterval resolves the watcher record's poll_seconds, falling back to
// 5s if absent or zero.
func (l *Loop) pollInterval() time.Duration {
	if l.PollSeconds > 0 {
		return time.Duration(l.PollSeconds) * time.Second
	}
	return defaultPollInterval
}

// Run executes the WATCHING -> TEARING_DOWN -> DONE state machine until the
// VM is confirmed torn down or a termination signal arrives. It returns nil
// on a graceful signal exit (no teardown) or after successful teardown.
func (l *Loop) Run() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	state := stateWatching
	notRunningStreak := 0
	interval := l.pollInterval()

	for state == stateWatching {
		select {
		case <-sigCh:
			clawlog.Infof("watcher for %s received termination signal, exiting without teardown", l.VM)
			return nil
		case <-time.After(interval):
		}

		running, err := l.Runtime.VMRunning(l.VM)
		if err != nil {
			clawlog.Warnf("watcher for %s: runtime probe error, ignoring: %v", l.VM, err)
			continue
		}

		if running {
			notRunningStreak = 0
			continue
		}

		notRunningStreak++
		if notRunningStreak >= confirmThreshold {
			state = stateTearingDown
		}
	}

	return l.teardown()
}

func (l *Loop) emit(event, reason string) {
	if l.Events == nil {
		return
	}
	l.Events.Append(syncevent.Event{
		Timestamp: time.Now().UTC(),
		VM:        l.VM,
		Event:     event,
		Actor:     syncevent.ActorWatcher,
		Reason:    reason,
	})
}

func (l *Loop) teardown() error {
	l.emit("watcher_teardown_triggered", "vm_not_running_confirmed")

	if l.Sync != nil {
		if err := l.Sync.Terminate(context.Background(), mutagenrun.Label(l.VM)); err != nil {
			clawlog.Warnf("watcher for %s: could not terminate sync sessions: %v", l.VM, err)
		}
	}

	if l.Locks != nil {
		if err := l.Locks.ReleaseAllFor(l.VM); err != nil {
			clawlog.Warnf("watcher for %s: could not release locks: %v", l.VM, err)
		}
	}

	l.emit("watcher_teardown_complete", "vm_not_running_confirmed")

	return removeRecord(l.WatchersDir, l.VM)
}
