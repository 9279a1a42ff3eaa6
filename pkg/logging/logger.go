// Copyright (c) 2025, the cloudseed authors.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logging

import (
	"log/slog"
	"os"
	"strings"
)

const logLevelEnvVar = "LOG_LEVEL"

// ParseLevel converts a level name to a slog.Level.
// Unknown or empty values default to slog.LevelInfo.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewStructuredLogger creates a JSON slog.Logger writing to stderr with
// module and version attributes attached to every record. Debug level
// enables source location tracking.
func NewStructuredLogger(module, version, level string) *slog.Logger {
	lvl := ParseLevel(level)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	})
	return slog.New(handler).With(
		slog.String("module", module),
		slog.String("version", version),
	)
}

// SetDefaultStructuredLogger installs a structured logger as the slog
// default, taking the log level from the LOG_LEVEL environment variable.
func SetDefaultStructuredLogger(module, version string) {
	SetDefaultStructuredLoggerWithLevel(module, version, os.Getenv(logLevelEnvVar))
}

// SetDefaultStructuredLoggerWithLevel installs a structured logger as the
// slog default with an explicit level, overriding LOG_LEVEL.
func SetDefaultStructuredLoggerWithLevel(module, version, level string) {
	if strings.TrimSpace(level) == "" {
		level = os.Getenv(logLevelEnvVar)
	}
	slog.SetDefault(NewStructuredLogger(module, version, level))
}
