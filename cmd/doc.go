// Package cmd implements the command-line interface of planb. Every command
// opens a data directory, runs against it and closes it again.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for a string keyed table (put, get, del, scan, perf, ...)
//   - uid: Commands for surrogate key lookups (put, id, get)
//   - stats: Prints configuration, engine info and metrics
//   - util: Shared flag, config and logging setup (internal use)
//
// Configuration is read from flags, PLANB_* environment variables and .env files.
// See planb -help for a list of all commands.
package cmd
