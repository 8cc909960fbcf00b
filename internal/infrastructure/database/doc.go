// Package database manages the SQLite connection backing the version
// history store.
//
// It provides:
//   - Connection setup with WAL mode and busy timeout pragmas
//   - Embedded schema migrations applied at startup
//   - Health checks and lifecycle management
//
// SQLite is a good fit for the snapshot store: a single file on disk,
// transactional writes (a commit is never left half-written), and
// readable independently of the live configuration files.
package database
