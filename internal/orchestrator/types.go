// Package orchestrator composes the Lock Manager, Marker Store, Watcher
// Supervisor, and Sync Activation packages into the clawbox verbs: create,
// launch, provision, up, recreate, down, delete, ip, status.
package orchestrator

import (
	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/marker"
	"github.com/joyshmitz/clawbox/internal/vmname"
)

// Paths carries the host directories a developer launch/provision locks.
type Paths struct {
	Source        string
	Payload       string
	SignalPayload string
}

// LaunchOptions is the input to Launch.
type LaunchOptions struct {
	Number   int
	Profile  marker.Profile
	Paths    Paths
	Headless bool
}

// ProvisionOptions is the input to Provision.
type ProvisionOptions struct {
	Number              int
	Profile             marker.Profile
	Playwright          bool
	Tailscale           bool
	SignalCli           bool
	EnableSignalPayload bool
	// ReactivateSync, when true (the default for developer profile), brings
	// sync sessions back up from the VM's current lock set after a
	// successful provision.
	ReactivateSync bool
}

// UpOptions is the input to Up and Recreate.
type UpOptions struct {
	Number     int
	Developer  bool
	Paths      Paths
	Playwright bool
	Tailscale  bool
	SignalCli  bool
}

func (u UpOptions) profile() marker.Profile {
	if u.Developer {
		return marker.ProfileDeveloper
	}
	return marker.ProfileStandard
}

func (u UpOptions) markerOptions() marker.UpOptions {
	return marker.UpOptions{
		Profile:    u.profile(),
		Playwright: u.Playwright,
		Tailscale:  u.Tailscale,
		SignalCli:  u.SignalCli,
	}
}

// validateNumber rejects n < 1 per SPEC_FULL.md's flag-combination table.
func validateNumber(n int) error {
	if !vmname.ValidNumber(n) {
		return clawerr.New(clawerr.Precondition, "VM number must be >= 1, got %d", n)
	}
	return nil
}

// validateDeveloperPaths rejects a developer launch/up missing either
// required path.
func validateDeveloperPaths(paths Paths) error {
	if paths.Source == "" || paths.Payload == "" {
		return clawerr.New(clawerr.Precondition, "developer profile requires both --openclaw-source and --openclaw-payload")
	}
	return nil
}

// validateSignalPayload rejects --signal-cli-payload without
// --add-signal-cli-provisioning; validateEnableSignalPayload below covers
// --enable-signal-payload.
func validateSignalPayload(signalCliRequested bool, signalPayloadPath string) error {
	if signalPayloadPath != "" && !signalCliRequested {
		return clawerr.New(clawerr.Precondition, "--signal-cli-payload requires --add-signal-cli-provisioning")
	}
	return nil
}

func validateEnableSignalPayload(signalCliRequested, enableSignalPayload bool) error {
	if enableSignalPayload && !signalCliRequested {
		return clawerr.New(clawerr.Precondition, "--enable-signal-payload requires --add-signal-cli-provisioning")
	}
	return nil
}
