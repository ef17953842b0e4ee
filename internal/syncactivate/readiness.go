package syncactivate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/pkg/clawlog"
)

const readinessPollInterval = 500 * time.Millisecond

// readinessBarrier writes a uniquely named probe file under the host side
// of every ready_required sync, then blocks until each probe is visible on
// the guest side or the configured timeout elapses. Specs with
// ready_required = false are then polled briefly (up to 3s each); a miss
// there is logged as a warning, not a failure. Host-side probe files are always
// removed, success or failure (Testable Property 8).
//
// The fan-out below has a statically known size — one goroutine per spec
// already in hand — so errgroup is the bounded-wait primitive the rest of
// this repo uses, not a general worker pool.
func (a *Activator) readinessBarrier(vm, ip string, creds sshprep.Creds, specs []mutagenrun.SessionSpec) error {
	var required []mutagenrun.SessionSpec
	var optional []mutagenrun.SessionSpec
	for _, s := range specs {
		if s.ReadyRequired {
			required = append(required, s)
		} else {
			optional = append(optional, s)
		}
	}

	probeNames := make([]string, len(required))
	for i := range required {
		id, err := uuid.NewV4()
		if err != nil {
			return clawerr.Wrap(clawerr.Precondition, err, "could not generate readiness probe id")
		}
		probeNames[i] = ".clawbox-sync-ready-" + id.String()
	}

	defer func() {
		for i, spec := range required {
			os.Remove(filepath.Join(spec.HostPath, probeNames[i]))
		}
	}()

	for i, spec := range required {
		if err := os.WriteFile(filepath.Join(spec.HostPath, probeNames[i]), []byte("ready"), 0644); err != nil {
			return clawerr.Wrap(clawerr.Precondition, err, "could not write readiness probe for %s", spec.Kind)
		}
	}

	timeout := a.Ctx.SyncReadyTimeout()

	group := new(errgroup.Group)
	for i := range required {
		i := i
		group.Go(func() error {
			spec := required[i]
			guestProbe := filepath.Join(spec.GuestPath, probeNames[i])
			return a.pollGuestPath(ip, creds, guestProbe, timeout)
		})
	}

	if err := group.Wait(); err != nil {
		lines, listErr := a.Ctx.Sync.List(context.Background(), mutagenrun.Label(vm))
		if listErr != nil {
			lines = []string{fmt.Sprintf("(could not list sessions: %v)", listErr)}
		}
		return clawerr.New(clawerr.SyncReadiness, "sync readiness timed out for %s: %v\nsessions:\n%s", vm, err, strings.Join(lines, "\n"))
	}

	for _, spec := range optional {
		probe := ".clawbox-sync-ready-optional-check"
		hostPath := filepath.Join(spec.HostPath, probe)
		if err := os.WriteFile(hostPath, []byte("ready"), 0644); err != nil {
			continue
		}
		guestProbe := filepath.Join(spec.GuestPath, probe)
		err := a.pollGuestPath(ip, creds, guestProbe, 3*time.Second)
		os.Remove(hostPath)
		if err != nil {
			clawlog.Warnf("optional sync path not visible for %s (%s): probe missing", vm, spec.Kind)
		}
	}

	return nil
}

func (a *Activator) pollGuestPath(ip string, creds sshprep.Creds, guestPath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	cmd := fmt.Sprintf("test -e %q", guestPath)

	for {
		if _, err := a.Ctx.Keys.ProbeAndRun(ip, creds, cmd); err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("probe %s did not appear within %s", guestPath, timeout)
		}
		time.Sleep(readinessPollInterval)
	}
}
