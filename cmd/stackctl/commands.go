package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/systemstart/stackctl/pkg/api"
	"github.com/systemstart/stackctl/pkg/config"
	"github.com/systemstart/stackctl/pkg/engine"
	"github.com/systemstart/stackctl/pkg/gcloud"
	"github.com/systemstart/stackctl/pkg/metrics"
	"github.com/systemstart/stackctl/pkg/processing"
	"github.com/systemstart/stackctl/pkg/stacks"
	"github.com/systemstart/stackctl/pkg/steps"
)

func newUpCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up [stack...]",
		Short: "Provision stacks in the given order",
		Long: "Provision stacks in the given order. A stack is a builtin name or a *.stack.yaml file.\n" +
			"Steps with a completion marker are skipped; re-running after a failure resumes where it stopped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, opts, recorder, err := prepare(flags, args, true)
			if err != nil {
				return err
			}

			results, runErr := processing.Apply(cmd.Context(), list, opts)
			printResults(cmd.OutOrStdout(), results)
			return finish(flags, recorder, results, runErr)
		},
	}
}

func newDownCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "down [stack...]",
		Short: "Tear stacks down in reverse order",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, opts, recorder, err := prepare(flags, args, true)
			if err != nil {
				return err
			}

			results, runErr := processing.Destroy(cmd.Context(), list, opts)
			printResults(cmd.OutOrStdout(), results)
			return finish(flags, recorder, results, runErr)
		},
	}
}

func newStatusCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status [stack...]",
		Short: "Show the recorded state of every step",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, opts, _, err := prepare(flags, args, false)
			if err != nil {
				return err
			}

			states, err := processing.Status(list, opts)
			if err != nil {
				return exitWith(exitConfigurationError, err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STACK\tSTEP\tSTATE\tCOMPLETED")
			for _, s := range states {
				state, completed := "pending", "-"
				if s.Done {
					state = s.Outcome
					completed = s.CompletedAt.Local().Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Stack, s.Step, state, completed)
			}
			return tw.Flush()
		},
	}
}

func newResetCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <stack> [pattern]",
		Short: "Clear completion markers so steps run again",
		Long:  "Clear the completion markers of a stack whose step IDs match a glob pattern (default: all).",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, opts, _, err := prepare(flags, args[:1], false)
			if err != nil {
				return err
			}
			pattern := ""
			if len(args) == 2 {
				pattern = args[1]
			}

			cleared, err := processing.Reset(list[0], pattern, opts)
			if err != nil {
				return exitWith(exitLoadStacksFailed, err)
			}
			for _, id := range cleared {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			slog.Info("markers cleared", "stack", list[0].Name, "count", len(cleared))
			return nil
		},
	}
}

func newStacksCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stacks",
		Short: "List builtin stacks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tSTEPS")
			for _, name := range stacks.Names() {
				s, err := stacks.Load(name)
				if err != nil {
					return exitWith(exitLoadStacksFailed, err)
				}
				fmt.Fprintf(tw, "%s\t%d\n", name, len(s.Steps))
			}
			return tw.Flush()
		},
	}
}

// prepare loads the stacks and builds the processing options. The env file
// is only required for commands that call gcloud.
func prepare(flags *globalFlags, args []string, needConfig bool) ([]*api.Stack, processing.Options, *metrics.Recorder, error) {
	opts := processing.Options{
		StateDir: flags.stateDir,
		Workers:  flags.workers,
	}

	list, deploymentContext, err := loadStacks(flags, args)
	if err != nil {
		return nil, opts, nil, exitWith(exitLoadStacksFailed, err)
	}

	cfg, err := config.Load(flags.envFile, config.WithEnviron(os.Environ()))
	if err != nil {
		if needConfig {
			return nil, opts, nil, exitWith(exitDotenvError, err)
		}
		slog.Debug("configuration not loaded", "error", err)
	}

	project := ""
	if cfg != nil {
		project = cfg.Project()
		slog.Debug("configuration loaded", "file", flags.envFile, "keys", cfg.Keys())
	}
	opts.Env = steps.Env{Runner: gcloud.NewCLI(flags.gcloudBinary, project), Config: cfg}

	opts.Context = deploymentContext
	if flags.contextFile != "" {
		fileContext, err := processing.LoadContextFile(flags.contextFile)
		if err != nil {
			return nil, opts, nil, exitWith(exitLoadStacksFailed, err)
		}
		opts.Context = processing.MergeContext(opts.Context, fileContext)
	}

	var recorder *metrics.Recorder
	if flags.metricsFile != "" {
		recorder = metrics.New()
		opts.Recorder = recorder
	}
	return list, opts, recorder, nil
}

func loadStacks(flags *globalFlags, args []string) ([]*api.Stack, map[string]any, error) {
	switch {
	case len(args) > 0:
		list, err := processing.LoadStacks(args)
		return list, nil, err
	case flags.deploymentFile != "":
		return processing.LoadDeployment(flags.deploymentFile)
	case flags.discoverDir != "":
		list, err := processing.DiscoverStacks(flags.discoverDir, flags.maxDepth)
		if err == nil && len(list) == 0 {
			err = fmt.Errorf("no %s files found below %s", "*"+api.StackFileSuffix, flags.discoverDir)
		}
		return list, nil, err
	case fileExists(api.DeploymentFile):
		return processing.LoadDeployment(api.DeploymentFile)
	default:
		return nil, nil, errors.New("no stacks given: pass stack names or files, --deployment or --discover")
	}
}

// finish writes metrics and maps the run error to an exit code. The first
// failed step is logged so the operator knows where to look.
func finish(flags *globalFlags, recorder *metrics.Recorder, results []processing.StackResult, runErr error) error {
	if recorder != nil {
		if err := recorder.WriteTextfile(flags.metricsFile); err != nil {
			if runErr == nil {
				return exitWith(exitMetricsFailed, err)
			}
			slog.Error("writing metrics failed", "error", err)
		}
	}

	if runErr == nil {
		return nil
	}
	// Nothing ran when definitions could not be built.
	if engine.IsConfigurationError(runErr) || len(results) == 0 {
		return exitWith(exitConfigurationError, runErr)
	}
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		if res, ok := r.Report.FirstFailure(); ok {
			slog.Error("first failed step", "stack", r.Stack, "step", res.ID, "status", res.Status,
				"retryable", engine.IsRetryable(res.Err), "error", res.Err)
			break
		}
	}
	return exitWith(exitStepsFailed, runErr)
}

func printResults(w io.Writer, results []processing.StackResult) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STACK\tSTEP\tSTATUS\tDURATION")
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		for _, res := range r.Report.Results {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Stack, res.ID, res.Status, res.Duration().Round(time.Millisecond))
		}
	}
	_ = tw.Flush()
}
