package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"

	"github.com/smazurov/lwalight/internal/app"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/display"
	"github.com/smazurov/lwalight/internal/logging"
)

// CreateCheckCmd creates the check command.
func CreateCheckCmd() *cobra.Command {
	var skipDevice bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration, sources, chart and indicator",
		Long: `Loads the configuration, the sources file (or station preset) and the color chart, ` +
			`validates the state precedence and opens the indicator, without polling anything. ` +
			`Exits non-zero when the daemon would refuse to start.`,
		Args: cobra.NoArgs,
		Run: humacli.WithOptions(func(cmd *cobra.Command, _ []string, opts *config.Options) {
			if err := runCheck(cmd.OutOrStdout(), opts, skipDevice); err != nil {
				logging.GetLogger("main").Error("Configuration check failed", "error", err)
				os.Exit(1)
			}
		}),
	}

	cmd.Flags().BoolVar(&skipDevice, "skip-device", false, "Do not open the indicator")
	return cmd
}

func runCheck(out io.Writer, opts *config.Options, skipDevice bool) error {
	if _, err := opts.Deadline(); err != nil {
		return err
	}

	p, err := app.BuildPipeline(opts)
	if err != nil {
		return err
	}
	defer p.Close()

	interval, _ := opts.LoopInterval()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tROLE\tKIND\tTIMEOUT\tRETRIES\tINTERVAL\tFRESHNESS")
	for _, sc := range p.Sources.Sources {
		sc = sc.WithDefaults(interval)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			sc.ID, sc.Role, sc.Kind, sc.Timeout, sc.RetryCount(), sc.Interval, sc.Freshness)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tCOMMAND")
	for _, s := range display.AllStates() {
		fmt.Fprintf(tw, "%s\t%s\n", s, p.Encoder.Encode(s))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !skipDevice {
		ctrl, err := app.OpenController(opts)
		if err != nil {
			return fmt.Errorf("failed to open indicator: %w", err)
		}
		fmt.Fprintf(out, "\nIndicator: %s\n", ctrl.Name())
		if err := ctrl.Close(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "\nConfiguration OK")
	return nil
}
