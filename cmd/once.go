package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/lwalight/internal/app"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/led"
	"github.com/smazurov/lwalight/internal/logging"
	"github.com/smazurov/lwalight/internal/monitor"
)

// CreateOnceCmd creates the once command.
func CreateOnceCmd() *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Poll every source once and print the station status",
		Long: `Runs a single monitoring cycle and prints the station status, the recorder ` +
			`activity and the camera state together with the display state the indicator would show. ` +
			`With --apply the resulting command is also shown on the indicator.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := runOnce(ctx, cmd, opts, apply); err != nil {
				logging.GetLogger("main").Error("Status check failed", "error", err)
				stop()
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "Show the result on the indicator")
	return cmd
}

func runOnce(ctx context.Context, cmd *cobra.Command, opts *config.Options, apply bool) error {
	p, err := app.BuildPipeline(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	deadline, err := opts.Deadline()
	if err != nil {
		return err
	}

	var ctrl led.Controller = led.NewNoop(logging.GetLogger("led"))
	if apply {
		if ctrl, err = app.OpenController(opts); err != nil {
			return fmt.Errorf("failed to open indicator: %w", err)
		}
	}
	defer ctrl.Close()

	loop := monitor.New(monitor.Config{Interval: deadline, Deadline: deadline},
		p.MonitorPollers(), p.Aggregator, p.Encoder, ctrl, logging.GetLogger("monitor"))
	res := loop.Cycle(ctx)
	if res.Aborted {
		return ctx.Err()
	}

	out := cmd.OutOrStdout()
	if err := monitor.WriteSummary(out, res.Snapshot, res.Decision, time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(out, "Indicator: %s\n", res.Command)
	if res.ApplyErr != nil {
		return res.ApplyErr
	}
	return nil
}
