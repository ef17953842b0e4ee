// Package marker reads and writes Provision Markers: the line-oriented
// key/value record at <project>/.clawbox/state/<vm>.provisioned that is the
// sole source of truth for "has this VM been provisioned, and under what
// options."
package marker

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joyshmitz/clawbox/internal/clawerr"
)

// Profile is the provisioning track.
type Profile string

const (
	ProfileStandard  Profile = "standard"
	ProfileDeveloper Profile = "developer"
)

// SyncBackend names the bidirectional sync implementation in use.
type SyncBackend string

const (
	SyncBackendNone    SyncBackend = ""
	SyncBackendMutagen SyncBackend = "mutagen"
)

// Marker is the decoded form of a .provisioned file.
type Marker struct {
	VMName        string
	Profile       Profile
	Playwright    bool
	Tailscale     bool
	SignalCli     bool
	SignalPayload bool
	SyncBackend   SyncBackend
	ProvisionedAt time.Time
}

// fieldOrder is the stable serialization order, chosen so that comparing
// two markers field-by-field (ignoring provisioned_at) is a straightforward
// struct compare rather than a line diff.
var fieldOrder = []string{
	"vm_name", "profile", "playwright", "tailscale", "signal_cli",
	"signal_payload", "sync_backend", "provisioned_at",
}

// ParseError is returned by Read for a malformed marker file; it carries
// enough context for the Parse error-taxonomy policy (file path + line).
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Msg)
}

func (m Marker) encodeFields() map[string]string {
	return map[string]string{
		"vm_name":        m.VMName,
		"profile":        string(m.Profile),
		"playwright":     strconv.FormatBool(m.Playwright),
		"tailscale":      strconv.FormatBool(m.Tailscale),
		"signal_cli":     strconv.FormatBool(m.SignalCli),
		"signal_payload": strconv.FormatBool(m.SignalPayload),
		"sync_backend":   string(m.SyncBackend),
		"provisioned_at": m.ProvisionedAt.UTC().Format(time.RFC3339),
	}
}

// Write atomically (temp file + rename) serializes marker to path.
func Write(marker Marker, path string) error {
	fields := marker.encodeFields()

	var buf bytes.Buffer
	for _, key := range fieldOrder {
		fmt.Fprintf(&buf, "%s: %s\n", key, fields[key])
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".marker-*.tmp")
	if err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write provision marker for %s", marker.VMName)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return clawerr.Wrap(clawerr.Precondition, err, "could not write provision marker for %s", marker.VMName)
	}
	if err := tmp.Close(); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write provision marker for %s", marker.VMName)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return clawerr.Wrap(clawerr.Precondition, err, "could not write provision marker for %s", marker.VMName)
	}

	return nil
}

// Read parses the marker at path. Returns (nil, nil) if the file does not
// exist, matching the spec's Marker | None | ParseError three-way result.
func Read(path string) (*Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not read provision marker %s", path)
	}

	fields := map[string]string{}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		idx := strings.Index(line, ":")
		if idx < 0 {
			return nil, &ParseError{Path: path, Line: lineNo, Msg: "malformed marker line (missing ':')"}
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, &ParseError{Path: path, Line: lineNo, Msg: "malformed marker line (empty key)"}
		}
		fields[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, clawerr.Wrap(clawerr.ParseErr, err, "could not read provision marker %s", path)
	}

	vmName, ok := fields["vm_name"]
	if !ok || vmName == "" {
		return nil, &ParseError{Path: path, Line: 0, Msg: "missing required field 'vm_name'"}
	}
	profile, ok := fields["profile"]
	if !ok || profile == "" {
		return nil, &ParseError{Path: path, Line: 0, Msg: "missing required field 'profile'"}
	}

	m := &Marker{
		VMName:        vmName,
		Profile:       Profile(profile),
		Playwright:    fields["playwright"] == "true",
		Tailscale:     fields["tailscale"] == "true",
		SignalCli:     fields["signal_cli"] == "true",
		SignalPayload: fields["signal_payload"] == "true",
		SyncBackend:   SyncBackend(fields["sync_backend"]),
	}

	if ts, ok := fields["provisioned_at"]; ok && ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			m.ProvisionedAt = t
		}
	}

	return m, nil
}

// Delete removes the marker at path; a missing file is not an error.
func Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return clawerr.Wrap(clawerr.Precondition, err, "could not remove provision marker %s", path)
	}
	return nil
}

// UpOptions is the set of user-requested options compared against an
// existing marker by Matches.
type UpOptions struct {
	Profile       Profile
	Playwright    bool
	Tailscale     bool
	SignalCli     bool
	SignalPayload bool
}

// Matches reports whether m was provisioned with exactly the options in u.
// provisioned_at and sync_backend are not compared: the former is a
// timestamp, not a request; the latter is derived from profile, not
// user-requested (Testable Property 3 — marker idempotence).
func Matches(m Marker, u UpOptions) bool {
	return m.Profile == u.Profile &&
		m.Playwright == u.Playwright &&
		m.Tailscale == u.Tailscale &&
		m.SignalCli == u.SignalCli &&
		m.SignalPayload == u.SignalPayload
}

// IsLegacyDeveloper reports whether m is a developer-profile marker written
// before sync_backend existed — such a marker must not be reused.
func IsLegacyDeveloper(m Marker) bool {
	return m.Profile == ProfileDeveloper && m.SyncBackend == SyncBackendNone
}
