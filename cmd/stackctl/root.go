package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud"
	"github.com/systemstart/stackctl/pkg/logging"
	"github.com/systemstart/stackctl/pkg/processing"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	envFile        string
	contextFile    string
	deploymentFile string
	discoverDir    string
	maxDepth       int
	stateDir       string
	workers        int
	loggingType    string
	logLevel       string
	metricsFile    string
	gcloudBinary   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           "stackctl",
		Short:         "Idempotent, dependency ordered cloud provisioning",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logging.Initialize(cmd.ErrOrStderr(), flags.loggingType, flags.logLevel); err != nil {
				return exitWith(exitLoggingFailed, err)
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.envFile, "env-file", ".env", "env file with PROJECT_ID, REGION and NAME_PREFIX")
	pf.StringVar(&flags.contextFile, "context-file", "", "global context YAML file")
	pf.StringVarP(&flags.deploymentFile, "deployment", "d", "", "deployment file listing the stacks (default "+api.DeploymentFile+" when present)")
	pf.StringVar(&flags.discoverDir, "discover", "", "load every *.stack.yaml below this directory")
	pf.IntVar(&flags.maxDepth, "max-depth", -1, "max directory depth for --discover (-1 = unlimited, 0 = root only)")
	pf.StringVar(&flags.stateDir, "state-dir", processing.DefaultStateDir, "directory holding completion markers")
	pf.IntVar(&flags.workers, "workers", engine.DefaultWorkers, "maximum number of steps running at once")
	pf.StringVar(&flags.loggingType, "logging-type", logging.Tint, "logging type: "+strings.Join(logging.Types, ", "))
	pf.StringVar(&flags.logLevel, "log-level", "info", "logging level: debug, info, warn, error")
	pf.StringVar(&flags.metricsFile, "metrics-file", "", "write Prometheus metrics to this file after the run")
	pf.StringVar(&flags.gcloudBinary, "gcloud", gcloud.DefaultBinary, "gcloud binary")

	cmd.AddCommand(newUpCommand(flags))
	cmd.AddCommand(newDownCommand(flags))
	cmd.AddCommand(newStatusCommand(flags))
	cmd.AddCommand(newResetCommand(flags))
	cmd.AddCommand(newStacksCommand())

	return cmd
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
