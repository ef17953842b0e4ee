package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joyshmitz/clawbox/internal/clawctx"
	"github.com/joyshmitz/clawbox/internal/clawerr"
	"github.com/joyshmitz/clawbox/internal/mutagenrun"
	"github.com/joyshmitz/clawbox/internal/orchestrator"
	"github.com/joyshmitz/clawbox/internal/provisionrun"
	"github.com/joyshmitz/clawbox/internal/sshprep"
	"github.com/joyshmitz/clawbox/internal/tartrun"
	"github.com/joyshmitz/clawbox/internal/watcher"
	"github.com/joyshmitz/clawbox/pkg/clawlog"
)

var (
	projectDir   string
	playbookPath string

	orc *orchestrator.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "clawbox",
	Short: "Manage per-developer macOS VMs with synced source and provisioning",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == watchVerb {
			return nil
		}

		runtime := tartrun.New()
		sync := mutagenrun.New()
		keys := sshprep.New()
		provisioner := provisionrun.New(filepath.Join(projectDir, "ansible"), playbookPath)

		ctx, err := clawctx.New(projectDir, runtime, provisioner, sync, keys)
		if err != nil {
			return err
		}

		orc = orchestrator.New(ctx, watcher.NewRealSpawner())
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and translates its result into an exit
// code: 0 on success, 1 with Message printed to stderr for a
// UserFacingError, and a re-panic (letting Go's runtime print a stack
// trace) for anything else, per spec's exceptions-as-control-flow policy.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var uerr *clawerr.UserFacingError
		if errors.As(err, &uerr) {
			fmt.Fprintln(os.Stderr, uerr.Message)
			os.Exit(1)
		}
		panic(err)
	}
}

func init() {
	clawlog.Init()

	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", ".", "project directory containing .clawbox/ state")
	rootCmd.PersistentFlags().StringVar(&playbookPath, "playbook", "site.yml", "ansible playbook path, relative to --project-dir/ansible unless absolute")
	viper.BindPFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newCreateCmd(),
		newLaunchCmd(),
		newProvisionCmd(),
		newUpCmd(),
		newRecreateCmd(),
		newDownCmd(),
		newDeleteCmd(),
		newIPCmd(),
		newStatusCmd(),
		newWatchCmd(),
	)
}
