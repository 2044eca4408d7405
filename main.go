package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/google/uuid"

	"github.com/smazurov/lwalight/cmd"
	"github.com/smazurov/lwalight/internal/app"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/logging"
	"github.com/smazurov/lwalight/internal/version"
)

// shutdownTimeout bounds how long a stop signal waits for the indicator to
// be turned off.
const shutdownTimeout = 5 * time.Second

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *config.Options) {
		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Error("Failed to load config", "config", opts.Config, "error", loadErr)
			os.Exit(1)
		}

		// Initialize logging system; [logging] keys other than level/format set module levels
		loggingConfig := config.LoadLoggingConfig(opts.Config)
		loggingConfig.Level = opts.LoggingLevel
		loggingConfig.Format = opts.LoggingFormat
		logging.Initialize(loggingConfig)

		logger := logging.GetLogger("main").With("run_id", uuid.NewString())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)
			logger.Info("Starting lwalight",
				"version", version.Version,
				"config", opts.Config,
				"station", opts.Station,
				"device", opts.Device)

			a, err := app.Build(opts, logger)
			if err != nil {
				logger.Error("Startup failed", "error", err)
				os.Exit(1)
			}

			if runErr := a.Run(ctx); runErr != nil {
				logger.Error("Monitor loop failed", "error", runErr)
			}
			if closeErr := a.Close(); closeErr != nil {
				logger.Warn("Cleanup incomplete", "error", closeErr)
			}
			logger.Info("lwalight stopped")
		})

		hooks.OnStop(func() {
			logger.Info("Shutdown requested")
			cancel()
			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				logger.Warn("Shutdown timed out, indicator may keep its last state")
			}
		})
	})

	root := cli.Root()
	root.Use = "lwalight"
	root.Short = "Drive a USB RGB indicator from LWA station status"
	root.Long = `lwalight polls the station OpScreen, the data recorders and the live camera ` +
		`(or any configured status sources), reduces them to one display state and shows it ` +
		`on a BlinkStick or a multicolor sysfs LED.`

	root.AddCommand(
		cmd.CreateCheckCmd(),
		cmd.CreateOnceCmd(),
		cmd.CreateCycleColorsCmd(),
		cmd.CreateVersionCmd(),
	)

	// Run the CLI
	cli.Run()
}
