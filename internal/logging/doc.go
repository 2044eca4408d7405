// Package logging sets up slog for lwalight: one logger per module, a
// global level with per-module overrides, and output to stderr, the systemd
// journal, or both.
//
// Call Initialize once at startup, then fetch loggers by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"poller": "debug"},
//	})
//	logger := logging.GetLogger("poller").With("source", id)
//
// Modules in use: main, config, sources, poller, monitor, led, metrics.
//
// Output selection:
//
//	stderr is the journal (JOURNAL_STREAM set)  -> JournalHandler
//	journal reachable, interactive terminal     -> MultiHandler (stderr + journal)
//	no journal                                  -> text or JSON on stderr
//
// In the journal every attribute is a field, so logs can be filtered with
//
//	journalctl -t lwalight MODULE=monitor
//	journalctl -t lwalight SOURCE=lwa1-summary -p warning
//
// In the options file any key of the [logging] table other than level and
// format names a module:
//
//	[logging]
//	level = "info"
//	poller = "debug"
//	led = "warn"
package logging
