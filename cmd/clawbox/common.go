package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/orchestrator"
)

// parseVMNumber extracts the single required positional VM number argument.
func parseVMNumber(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one VM number argument, got %d", len(args))
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, clawerr.New(clawerr.Precondition, "VM number must be an integer, got %q", args[0])
	}
	return n, nil
}

// profileFlags is --developer/--standard, shared by every verb that needs
// to pick a provision profile.
type profileFlags struct {
	developer bool
	standard  bool
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.developer, "developer", false, "developer profile (syncs source/payload, mounts signal-cli payload)")
	cmd.Flags().BoolVar(&f.standard, "standard", false, "standard profile (default)")
}

// resolve rejects a simultaneous --developer/--standard request, matching
// spec's "a --developer and --standard conflict is rejected by the parser".
func (f *profileFlags) resolve() (bool, error) {
	if f.developer && f.standard {
		return false, clawerr.New(clawerr.Precondition, "--developer and --standard are mutually exclusive")
	}
	return f.developer, nil
}

// pathFlags is the developer host-path trio shared by launch and up/recreate.
type pathFlags struct {
	source        string
	payload       string
	signalPayload string
}

func (f *pathFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.source, "openclaw-source", "", "host path to the openclaw source tree (developer only)")
	cmd.Flags().StringVar(&f.payload, "openclaw-payload", "", "host path to the openclaw payload directory (developer only)")
	cmd.Flags().StringVar(&f.signalPayload, "signal-cli-payload", "", "host path to the signal-cli payload directory")
}

func (f *pathFlags) paths() orchestrator.Paths {
	return orchestrator.Paths{
		Source:        f.source,
		Payload:       f.payload,
		SignalPayload: f.signalPayload,
	}
}

// featureFlags is the provisioning feature trio shared by provision and
// up/recreate.
type featureFlags struct {
	playwright bool
	tailscale  bool
	signalCli  bool
}

func (f *featureFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.playwright, "add-playwright-provisioning", false, "enable the playwright feature during provisioning")
	cmd.Flags().BoolVar(&f.tailscale, "add-tailscale-provisioning", false, "enable the tailscale feature during provisioning")
	cmd.Flags().BoolVar(&f.signalCli, "add-signal-cli-provisioning", false, "enable the signal-cli feature during provisioning")
}
