package serializer

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FormatFromPath determines the serialization format based on file extension.
// Supported extensions:
//   - .json → FormatJSON
//   - .yaml, .yml → FormatYAML
//   - .table, .txt → FormatTable
//
// Returns FormatJSON as default for unknown extensions.
// Extension matching is case-insensitive.
func FormatFromPath(filePath string) Format {
	lowerPath := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lowerPath, ".json"):
		return FormatJSON
	case strings.HasSuffix(lowerPath, ".yaml"), strings.HasSuffix(lowerPath, ".yml"):
		return FormatYAML
	case strings.HasSuffix(lowerPath, ".table"), strings.HasSuffix(lowerPath, ".txt"):
		return FormatTable
	default:
		slog.Warn("unknown file extension, defaulting to JSON", "filePath", filePath)
		return FormatJSON
	}
}

// Reader handles deserialization of structured data from JSON or YAML
// sources. Close must be called to release resources when using
// NewFileReader; it is safe to call multiple times.
type Reader struct {
	format Format
	input  io.Reader
	closer io.Closer
}

// NewReader creates a new Reader for deserializing data from an io.Reader
// source. Returns an error for unknown formats and for FormatTable, which
// is write-only.
func NewReader(format Format, input io.Reader) (*Reader, error) {
	if format.IsUnknown() {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	if format == FormatTable {
		return nil, fmt.Errorf("table format does not support deserialization")
	}

	r := &Reader{
		format: format,
		input:  input,
	}

	if closer, ok := input.(io.Closer); ok {
		r.closer = closer
	}

	return r, nil
}

// NewFileReader creates a new Reader that reads from a local file path.
// Close must be called to release the file handle.
func NewFileReader(format Format, filePath string) (*Reader, error) {
	if format.IsUnknown() {
		return nil, fmt.Errorf("unknown format: %s", format)
	}

	if format == FormatTable {
		return nil, fmt.Errorf("table format does not support deserialization")
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &Reader{
		format: format,
		input:  file,
		closer: file,
	}, nil
}

// Deserialize reads data from the input source and unmarshals it into v,
// which must be a pointer.
func (r *Reader) Deserialize(v any) error {
	if r == nil {
		return fmt.Errorf("reader is nil")
	}

	if r.input == nil {
		return fmt.Errorf("input source is nil")
	}

	switch r.format {
	case FormatJSON:
		decoder := json.NewDecoder(r.input)
		if err := decoder.Decode(v); err != nil {
			return fmt.Errorf("failed to decode JSON: %w", err)
		}
		return nil

	case FormatYAML:
		decoder := yaml.NewDecoder(r.input)
		if err := decoder.Decode(v); err != nil {
			return fmt.Errorf("failed to decode YAML: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported format for deserialization: %s", r.format)
	}
}

// Close releases any resources held by the Reader. Safe to call multiple
// times and on a nil Reader.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}

	if r.closer != nil {
		err := r.closer.Close()
		r.closer = nil // Prevent double-close
		return err
	}
	return nil
}

// FromFile loads and deserializes a local file in one call. The format is
// detected from the file extension via FormatFromPath.
func FromFile[T any](path string) (*T, error) {
	fileFormat := FormatFromPath(path)

	reader, err := NewFileReader(fileFormat, path)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader for %q: %w", path, err)
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			slog.Warn("failed to close reader", "error", closeErr)
		}
	}()

	var r T
	if err := reader.Deserialize(&r); err != nil {
		return nil, fmt.Errorf("failed to deserialize object from %q: %w", path, err)
	}

	return &r, nil
}
