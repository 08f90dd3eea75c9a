// Package driver provides in-process INDI device drivers.
//
// Basic defines the standard CONNECTION and DRIVER_INFO vectors plus any
// extra vectors it is configured with, and commits every validated request
// in state Ok. It backs devices declared in YAML profiles that have no
// hardware behind them.
package driver
