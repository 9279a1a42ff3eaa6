package serializer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

type testRecord struct {
	Name   string   `json:"name" yaml:"name"`
	Count  int      `json:"count" yaml:"count"`
	Labels []string `json:"labels" yaml:"labels"`
}

func TestWriterSerializeJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatJSON, &buf)

	in := testRecord{Name: "ec2", Count: 2, Labels: []string{"a", "b"}}
	if err := w.Serialize(t.Context(), in); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	var out testRecord
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count {
		t.Errorf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestWriterSerializeYAML(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatYAML, &buf)

	in := testRecord{Name: "nocloud", Count: 1}
	if err := w.Serialize(t.Context(), in); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	var out testRecord
	if err := yaml.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if out.Name != "nocloud" {
		t.Errorf("Name = %q, want nocloud", out.Name)
	}
}

func TestWriterSerializeTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(FormatTable, &buf)

	in := testRecord{Name: "ec2", Count: 2, Labels: []string{"a"}}
	if err := w.Serialize(t.Context(), in); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"FIELD", "Name", "ec2", "Labels.[0]"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestWriterUnknownFormatDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(Format("xml"), &buf)

	if err := w.Serialize(t.Context(), map[string]string{"k": "v"}); err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	if !json.Valid(buf.Bytes()) {
		t.Errorf("expected JSON fallback, got: %s", buf.String())
	}
}

func TestFormatIsUnknown(t *testing.T) {
	tests := []struct {
		format Format
		want   bool
	}{
		{FormatJSON, false},
		{FormatYAML, false},
		{FormatTable, false},
		{Format(""), true},
		{Format("xml"), true},
	}

	for _, tt := range tests {
		if got := tt.format.IsUnknown(); got != tt.want {
			t.Errorf("Format(%q).IsUnknown() = %v, want %v", tt.format, got, tt.want)
		}
	}
}
