// Package status composes every other component's on-disk and runtime
// state into a single read-only report per VM, for the clawbox "status"
// verb. It touches no lock, marker, or registry file for writing.
package status

import (
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/joyshmitz/clawbox/internal/clawctx"
	"github.com/joyshmitz/clawbox/internal/marker"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/vmname"
	"github.com/joyshmitz/clawbox/internal/watcher"
)

// SyncProbe classifies whether a developer VM's sync sessions could be
// queried at all.
type SyncProbe string

const (
	ProbeOK            SyncProbe = "ok"
	ProbeUnavailable   SyncProbe = "unavailable"
	ProbeNotApplicable SyncProbe = "not_applicable"
)

// SyncStatus is the synchronizer session mapping for one VM.
type SyncStatus struct {
	Enabled bool      `json:"enabled"`
	Probe   SyncProbe `json:"probe"`
	Active  bool      `json:"active"`
	Lines   []string  `json:"lines,omitempty"`
	Warning string    `json:"warning,omitempty"`
}

// SyncPathsStatus is the guest-probed mount status for a developer VM's
// sync paths (spec.md:177 "sync-path statuses probed from inside the
// guest"), distinct from SyncStatus's external-synchronizer session
// summary. Only probed when a provision marker exists.
type SyncPathsStatus struct {
	Probe    SyncProbe         `json:"probe"`
	Statuses map[string]string `json:"statuses,omitempty"`
	Note     string            `json:"note,omitempty"`
}

// VMStatus is the full per-VM report surfaced by `clawbox status`.
type VMStatus struct {
	Name        string          `json:"name"`
	Running     bool            `json:"running"`
	IP          string          `json:"ip,omitempty"`
	Profile     marker.Profile  `json:"profile,omitempty"`
	Provisioned bool            `json:"provisioned"`
	Watcher     WatcherStatus   `json:"watcher"`
	SyncPaths   SyncPathsStatus `json:"sync_paths"`
	Sync        SyncStatus      `json:"sync"`
}

// WatcherStatus reports whether a watcher process is recorded and alive
// for this VM.
type WatcherStatus struct {
	Present bool `json:"present"`
	Pid     int  `json:"pid,omitempty"`
	Alive   bool `json:"alive"`
}

// Report builds the status for a single VM name.
func Report(ctx *clawctx.Context, name string) (VMStatus, error) {
	out := VMStatus{Name: name}

	running, err := ctx.Runtime.VMRunning(name)
	if err != nil {
		running = false
	}
	out.Running = running

	if running {
		if ip, err := ctx.Runtime.IP(name); err == nil {
			out.IP = ip
		}
	}

	m, err := marker.Read(ctx.MarkerPath(name))
	if err == nil && m != nil {
		out.Provisioned = true
		out.Profile = m.Profile
	}

	rec, err := watcherRecord(ctx, name)
	if err == nil && rec != nil {
		alive := false
		if rec.Pid > 0 {
			if proc, err := os.FindProcess(rec.Pid); err == nil {
				alive = proc.Signal(syscall.Signal(0)) == nil
			}
		}
		out.Watcher = WatcherStatus{Present: true, Pid: rec.Pid, Alive: alive}
	}

	out.SyncPaths = syncPathsStatus(ctx, name, m, out.IP)
	out.Sync = syncStatus(ctx, name, m)

	return out, nil
}

func watcherRecord(ctx *clawctx.Context, name string) (*watcher.Record, error) {
	return watcher.ReadRecord(ctx.WatchersDir(), name)
}

// guestSyncPaths returns the guest mount paths a developer VM's marker
// declares, or nil for a standard-profile or absent marker — spec.md:177's
// guest-probed half only applies to developer VMs with active sync kinds.
func guestSyncPaths(m *marker.Marker) []string {
	if m == nil || m.Profile != marker.ProfileDeveloper {
		return nil
	}
	paths := []string{mutagenrun.GuestOpenclawSource, mutagenrun.GuestOpenclawPayload}
	if m.SignalPayload {
		paths = append(paths, mutagenrun.GuestSignalPayload)
	}
	return paths
}

// mountStatusCommand builds the single remote shell command that reports,
// one line per path, whether each guest mount point currently resolves.
func mountStatusCommand(paths []string) string {
	var b strings.Builder
	for i, p := range paths {
		if i > 0 {
			b.WriteString(" && ")
		}
		fmt.Fprintf(&b, "echo %s: $(test -e %s && echo mounted || echo missing)", p, p)
	}
	return b.String()
}

// parseMountStatuses parses mountStatusCommand's "path: status" output,
// tolerating blank lines, and defaults any path absent from the output to
// "unknown" rather than dropping it from the map.
func parseMountStatuses(output string, paths []string) map[string]string {
	statuses := map[string]string{}
	for _, p := range paths {
		statuses[p] = "unknown"
	}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		path := strings.TrimSpace(line[:idx])
		status := strings.TrimSpace(line[idx+1:])
		if _, known := statuses[path]; known && status != "" {
			statuses[path] = status
		}
	}
	return statuses
}

// syncPathsStatus probes the guest's sync mount points over SSH as the
// vm_user account, per spec.md:177 "sync-path statuses probed from inside
// the guest (only when a marker exists)". It is independent of syncStatus,
// which only reports the external synchronizer's own session summary.
func syncPathsStatus(ctx *clawctx.Context, name string, m *marker.Marker, ip string) SyncPathsStatus {
	if m == nil {
		return SyncPathsStatus{Probe: ProbeNotApplicable, Note: "no marker found; skipping remote sync-path probe"}
	}

	paths := guestSyncPaths(m)
	if len(paths) == 0 {
		return SyncPathsStatus{Probe: ProbeNotApplicable}
	}

	if ip == "" {
		return SyncPathsStatus{Probe: ProbeUnavailable, Note: "VM is not running"}
	}

	secrets, err := ctx.Secrets()
	if err != nil {
		return SyncPathsStatus{Probe: ProbeUnavailable, Note: "could not resolve vm_user credentials"}
	}

	creds := sshprep.Creds{User: name, Password: secrets.VMUserPassword}
	output, err := ctx.Keys.ProbeAndRun(ip, creds, mountStatusCommand(paths))
	if err != nil {
		return SyncPathsStatus{Probe: ProbeUnavailable}
	}

	statuses := parseMountStatuses(output, paths)
	for _, s := range statuses {
		if s != "unknown" {
			return SyncPathsStatus{Probe: ProbeOK, Statuses: statuses}
		}
	}
	return SyncPathsStatus{Probe: ProbeUnavailable, Statuses: statuses}
}

func syncStatus(ctx *clawctx.Context, name string, m *marker.Marker) SyncStatus {
	if m == nil || m.Profile != marker.ProfileDeveloper {
		return SyncStatus{Enabled: false, Probe: ProbeNotApplicable}
	}

	label := mutagenrun.Label(name)
	lines, err := ctx.Sync.List(context.Background(), label)
	if err != nil {
		return SyncStatus{Enabled: true, Probe: ProbeUnavailable}
	}

	s := SyncStatus{Enabled: true, Probe: ProbeOK, Active: len(lines) > 0, Lines: lines}
	if !s.Active {
		s.Warning = "developer marker present but no sync sessions are listed"
	}
	return s
}

// ReportAll enumerates the union of every VM the runtime currently reports
// plus every marker file stem under state/, and fetches each report
// concurrently. The fan-out size is known upfront (the merged name set),
// so errgroup is the bounded join primitive here, not a worker pool.
func ReportAll(ctx *clawctx.Context) ([]VMStatus, error) {
	names, err := allKnownNames(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]VMStatus, len(names))
	group, _ := errgroup.WithContext(context.Background())

	for i, name := range names {
		i, name := i, name
		group.Go(func() error {
			r, err := Report(ctx, name)
			if err != nil {
				return err
			}
			reports[i] = r
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return reports, nil
}

func allKnownNames(ctx *clawctx.Context) ([]string, error) {
	seen := map[string]bool{}
	var names []string

	vms, err := ctx.Runtime.ListVMsJSON()
	if err == nil {
		for _, vm := range vms {
			if _, ok := vmname.ParseNumber(vm.Name); !ok {
				continue
			}
			if !seen[vm.Name] {
				seen[vm.Name] = true
				names = append(names, vm.Name)
			}
		}
	}

	entries, err := os.ReadDir(ctx.StateDir)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".provisioned") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".provisioned")
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	return names, nil
}
