package status

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

// RenderText writes reports as an ASCII table, coloring the running,
// watcher and sync columns: green for healthy, yellow for a warning, red for
// down.
func RenderText(w io.Writer, reports []VMStatus) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Running", "IP", "Profile", "Provisioned", "Watcher", "Sync"})
	table.SetAutoWrapText(false)

	for _, r := range reports {
		table.Append([]string{
			r.Name,
			colorBool(r.Running),
			r.IP,
			string(r.Profile),
			fmt.Sprint(r.Provisioned),
			watcherCell(r.Watcher),
			syncCell(r.Sync),
		})
	}

	table.Render()
}

func colorBool(b bool) string {
	if b {
		return color.New(color.FgGreen).Sprint("running")
	}
	return color.New(color.FgRed).Sprint("down")
}

func watcherCell(w WatcherStatus) string {
	if !w.Present {
		return color.New(color.FgYellow).Sprint("none")
	}
	if w.Alive {
		return color.New(color.FgGreen).Sprintf("alive (pid %d)", w.Pid)
	}
	return color.New(color.FgRed).Sprint("stale")
}

func syncCell(s SyncStatus) string {
	if !s.Enabled {
		return color.New(color.FgYellow).Sprint("not_applicable")
	}

	switch s.Probe {
	case ProbeUnavailable:
		return color.New(color.FgRed).Sprint("unavailable")
	}

	if s.Warning != "" {
		return color.New(color.FgYellow).Sprintf("ok (%s)", s.Warning)
	}
	if s.Active {
		return color.New(color.FgGreen).Sprintf("ok (%d sessions)", len(s.Lines))
	}
	return color.New(color.FgYellow).Sprint("ok (inactive)")
}

// RenderJSON writes reports as a JSON array.
func RenderJSON(w io.Writer, reports []VMStatus) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// summaryLine returns a one-line, uncolored description of r (name,
// running/down, and IP when known).
func summaryLine(r VMStatus) string {
	parts := []string{r.Name}
	if r.Running {
		parts = append(parts, "running")
	} else {
		parts = append(parts, "down")
	}
	if r.IP != "" {
		parts = append(parts, fmt.Sprintf("ip=%s", r.IP))
	}
	return strings.Join(parts, " ")
}
