package serializer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"status.json", FormatJSON},
		{"config.yaml", FormatYAML},
		{"config.YML", FormatYAML},
		{"out.table", FormatTable},
		{"notes.txt", FormatTable},
		{"unknown.bin", FormatJSON},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := FormatFromPath(tt.path); got != tt.want {
				t.Errorf("FormatFromPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestReaderDeserializeJSON(t *testing.T) {
	r, err := NewReader(FormatJSON, strings.NewReader(`{"name":"ec2","count":3}`))
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	var out testRecord
	if err := r.Deserialize(&out); err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if out.Name != "ec2" || out.Count != 3 {
		t.Errorf("got %+v", out)
	}
}

func TestReaderRejectsTableFormat(t *testing.T) {
	if _, err := NewReader(FormatTable, strings.NewReader("x")); err == nil {
		t.Error("expected error for table format reader")
	}
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.yaml")
	content := "name: nocloud\ncount: 7\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rec, err := FromFile[testRecord](path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if rec.Name != "nocloud" || rec.Count != 7 {
		t.Errorf("got %+v", rec)
	}
}

func TestFromFileMissing(t *testing.T) {
	if _, err := FromFile[testRecord](filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
