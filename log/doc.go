// Package log provides the leveled logging interface shared by the docrag components.
//
// The default implementation is backed by kataras/golog. Components accept an
// optional Logger and fall back to the package-level logger when none is given.
//
// # Log Levels
//
//   - LogLevelDebug: Detailed debugging information
//   - LogLevelInfo: General progress messages such as finished batches
//   - LogLevelWarn: Degraded operation, for example an unreachable graph store
//   - LogLevelError: Failures that lose data, such as a skipped page
//   - LogLevelNone: Disables all logging output
//
// # Example Usage
//
//	logger := log.NewDefaultLogger(log.LogLevelDebug)
//	logger.Info("ingesting %s", fileName)
//
//	// Or configure the package-level logger once
//	log.SetLogLevel(log.ParseLevel(os.Getenv("LOG_LEVEL")))
//	log.Warn("graph store unreachable: %v", err)
//
// NoOpLogger silences output, which is convenient in tests.
package log
