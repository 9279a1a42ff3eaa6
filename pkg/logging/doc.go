// Package logging provides structured logging utilities for cloudseed
// components.
//
// # Overview
//
// This package wraps the standard library slog package with cloudseed
// defaults and conventions for consistent logging across all boot stages.
// It supports environment-based log level configuration, module/version
// context injection, and automatic source location tracking for debug logs.
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
// Setting the default logger (recommended):
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("cloudseed", "v1.0.0")
//	    slog.Info("stage starting", "stage", "init-local")
//	}
//
// Setting explicit log level:
//
//	logging.SetDefaultStructuredLoggerWithLevel("cloudseed", "v1.0.0", "warn")
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity when no
// explicit level is supplied:
//
//	LOG_LEVEL=debug cloudseed init --local
//
// If LOG_LEVEL is not set, defaults to INFO level.
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "stage complete",
//	    "module": "cloudseed",
//	    "version": "v1.0.0",
//	    "stage": "init"
//	}
package logging
