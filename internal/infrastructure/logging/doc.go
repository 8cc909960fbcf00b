// Package logging provides structured logging for confman.
//
// It wraps log/slog with level parsing, format selection (JSON for
// machine consumption, text for terminals) and default fields. The
// default output is stderr so command output on stdout stays clean for
// piping.
//
// Usage:
//
//	log := logging.New(cfg.Logging, version)
//	log.Info("snapshot committed", "seq", snap.Seq)
package logging
