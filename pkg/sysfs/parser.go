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

package sysfs

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"
)

// Option configures the Parser.
type Option func(*Parser)

// Parser parses line-oriented configuration files with customizable settings.
type Parser struct {
	delimiter       string
	maxSize         int
	skipComments    bool
	kvDelimiter     string
	vDefault        string
	vTrimChars      string
	skipEmptyValues bool
}

// WithDelimiter sets the delimiter used to split entries in the file.
// Default is newline ("\n").
func WithDelimiter(delim string) Option {
	return func(p *Parser) {
		p.delimiter = delim
	}
}

// WithMaxSize sets the maximum size (in bytes) of the file to be parsed.
// Default is 1MB.
func WithMaxSize(size int) Option {
	return func(p *Parser) {
		p.maxSize = size
	}
}

// WithSkipComments sets whether to skip comment lines in the file.
// Default is true.
func WithSkipComments(skip bool) Option {
	return func(p *Parser) {
		p.skipComments = skip
	}
}

// WithKVDelimiter sets the key-value delimiter used in GetMap.
// Default is "=".
func WithKVDelimiter(kvDelim string) Option {
	return func(p *Parser) {
		p.kvDelimiter = kvDelim
	}
}

// WithVDefault sets the default value to use when a key has no associated value.
// Default is an empty string.
func WithVDefault(vDefault string) Option {
	return func(p *Parser) {
		p.vDefault = vDefault
	}
}

// WithVTrimChars sets characters to trim from values in GetMap.
// Default is no trimming.
func WithVTrimChars(trimChars string) Option {
	return func(p *Parser) {
		p.vTrimChars = trimChars
	}
}

// WithSkipEmptyValues sets whether to skip empty values when parsing the file.
// Default is false.
func WithSkipEmptyValues(skip bool) Option {
	return func(p *Parser) {
		p.skipEmptyValues = skip
	}
}

// NewParser creates a new file parser with the provided options.
// Default settings: newline delimiter ("\n"), 1MB max file size.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		delimiter:       "\n",
		maxSize:         1 << 20, // 1MB default
		skipComments:    true,
		kvDelimiter:     "=",
		vDefault:        "",
		vTrimChars:      "",
		skipEmptyValues: false,
	}

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetMap reads the file at the given path and parses its content into a map.
// Each entry is split into a key-value pair using the configured delimiter.
// If an entry does not contain the delimiter, the value is set to vDefault.
// Returns an error if the file cannot be read or parsed.
func (p *Parser) GetMap(path string) (map[string]string, error) {
	parts, err := p.GetLines(path)
	if err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, part := range parts {
		kv := strings.SplitN(part, p.kvDelimiter, 2)

		if len(kv) != 2 {
			key := strings.TrimSpace(kv[0])

			if p.skipEmptyValues && p.vDefault == "" {
				slog.Debug("skipping entry with key-only and empty default",
					"key", key,
				)
				continue
			}

			result[key] = p.vDefault
			continue
		}

		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])

		if p.vTrimChars != "" {
			value = strings.Trim(value, p.vTrimChars)
		}

		if p.skipEmptyValues && value == "" {
			slog.Debug("skipping entry with empty value",
				"key", key,
			)
			continue
		}

		result[key] = value
	}

	return result, nil
}

// GetLines reads the file at the given path and splits its content into
// entries based on the configured delimiter. It returns a slice of
// non-empty entries. An error is returned if the file cannot be read,
// exceeds the maximum size, or contains invalid UTF-8 content.
func (p *Parser) GetLines(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %q: %w", path, err)
	}

	if !utf8.Valid(b) {
		return nil, fmt.Errorf("content of file %q is not valid UTF-8", path)
	}

	if len(b) > p.maxSize {
		return nil, fmt.Errorf("file %q exceeds maximum size of %d bytes", path, p.maxSize)
	}

	parts := strings.Split(string(b), p.delimiter)

	result := make([]string, 0, len(parts))
	for _, part := range parts {
		cleanPart := strings.TrimSpace(part)
		if cleanPart == "" {
			continue
		}

		if p.skipComments && strings.HasPrefix(cleanPart, "#") {
			continue
		}

		result = append(result, cleanPart)
	}

	return result, nil
}

// GetValue reads the file at the given path and returns its content as a
// single trimmed string. Useful for one-value sysfs assets.
func (p *Parser) GetValue(path string) (string, error) {
	lines, err := p.GetLines(path)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}
