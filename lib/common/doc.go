// Package common holds the configuration of a PlanB environment and the
// logger factory shared by all packages.
//
// Loggers are obtained per package with dragonboat's logger.GetLogger; InitLoggers
// replaces the default format by "LEVEL | package | message" and sets the level.
package common
