package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/lwalight/internal/app"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/led"
	"github.com/smazurov/lwalight/internal/logging"
)

// CreateCycleColorsCmd creates the cycle-colors command.
func CreateCycleColorsCmd() *cobra.Command {
	var hold time.Duration

	cmd := &cobra.Command{
		Use:   "cycle-colors",
		Short: "Show every chart entry on the indicator in turn",
		Long:  `Steps through the display states from all_nominal to station_critical, holding each command on the indicator, then turns it off.`,
		Args:  cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			chart, err := display.LoadChart(opts.ChartFile)
			if err != nil {
				logging.GetLogger("main").Error("Failed to load chart", "error", err)
				stop()
				os.Exit(1)
			}
			enc, err := display.NewEncoder(chart)
			if err != nil {
				logging.GetLogger("main").Error("Invalid chart", "error", err)
				stop()
				os.Exit(1)
			}

			ctrl, err := app.OpenController(opts)
			if err != nil {
				logging.GetLogger("main").Error("Failed to open indicator", "error", err)
				stop()
				os.Exit(1)
			}
			if err := cycleColors(ctx, cmd.OutOrStdout(), ctrl, enc, hold); err != nil {
				logging.GetLogger("main").Error("Color cycle failed", "error", err)
				stop()
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().DurationVar(&hold, "hold", 3*time.Second, "How long each state is shown")
	return cmd
}

// cycleColors applies each state's command for hold, stopping early when
// ctx is done. The indicator is turned off and closed afterwards.
func cycleColors(ctx context.Context, out io.Writer, ctrl led.Controller, enc *display.Encoder, hold time.Duration) error {
	defer ctrl.Close()

	var applyErr error
	for _, s := range display.AllStates() {
		cmd := enc.Encode(s)
		fmt.Fprintf(out, "%-20s %s\n", s, cmd)
		if err := ctrl.Apply(cmd); err != nil && applyErr == nil {
			applyErr = err
		}

		select {
		case <-ctx.Done():
			_ = ctrl.Apply(display.Off)
			return ctx.Err()
		case <-time.After(hold):
		}
	}

	if err := ctrl.Apply(display.Off); err != nil && applyErr == nil {
		applyErr = err
	}
	return applyErr
}
