// Package log provides the leveled logging interface used across the
// regular-rag engine.
//
// Components accept any implementation of the Logger interface; the package
// ships a standard-library DefaultLogger, a NoOpLogger for tests, and a thin
// wrapper around github.com/kataras/golog for callers that already run golog.
//
// # Log Levels
//
// Five levels, in order of increasing severity:
//
//   - LogLevelDebug: detailed debugging information
//   - LogLevelInfo: normal operation (ingestion progress, cache hits)
//   - LogLevelWarn: recoverable issues (plan fallback, skipped chunks)
//   - LogLevelError: failures that surface to the caller
//   - LogLevelNone: disables all output
//
// # Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelInfo)
//	logger.Info("ingested document %s (%d chunks)", id, n)
//
// With golog:
//
//	glogger := golog.New()
//	logger := log.NewGologLogger(glogger)
//	logger.SetLevel(log.LogLevelDebug)
//
// A package-level default logger is available through SetDefaultLogger and
// the package-level Debug/Info/Warn/Error functions; components that are not
// handed a logger fall back to it.
package log
