package sysfs

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParserGetMap(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "release", "NAME=\"Ubuntu\"\nID=ubuntu\n# comment\nEMPTY=\n")

	parser := NewParser(
		WithKVDelimiter("="),
		WithVTrimChars(`"`),
		WithSkipEmptyValues(true),
	)

	got, err := parser.GetMap(path)
	if err != nil {
		t.Fatalf("GetMap() error = %v", err)
	}
	if got["NAME"] != "Ubuntu" {
		t.Errorf("NAME = %q, want Ubuntu", got["NAME"])
	}
	if got["ID"] != "ubuntu" {
		t.Errorf("ID = %q, want ubuntu", got["ID"])
	}
	if _, ok := got["EMPTY"]; ok {
		t.Error("empty values should be skipped")
	}
	if _, ok := got["# comment"]; ok {
		t.Error("comments should be skipped")
	}
}

func TestParserGetMapKeyOnlyDefault(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "cmdline", "ro quiet ds=nocloud")

	parser := NewParser(WithDelimiter(" "), WithSkipComments(false))
	got, err := parser.GetMap(path)
	if err != nil {
		t.Fatalf("GetMap() error = %v", err)
	}
	if got["ds"] != "nocloud" {
		t.Errorf("ds = %q, want nocloud", got["ds"])
	}
	if v, ok := got["quiet"]; !ok || v != "" {
		t.Errorf("flag entries should map to empty string, got %q ok=%v", v, ok)
	}
}

func TestParserGetLinesMaxSize(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big", "0123456789")

	parser := NewParser(WithMaxSize(4))
	if _, err := parser.GetLines(path); err == nil {
		t.Error("expected max size error")
	}
}

func TestParserGetLinesInvalidUTF8(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bin")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0xfd}, 0o600); err != nil {
		t.Fatal(err)
	}

	parser := NewParser()
	if _, err := parser.GetLines(path); err == nil {
		t.Error("expected UTF-8 validation error")
	}
}

func TestDMIGet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DMISystemUUID, "EC2E1916-9099-7CAF-FD21-012345ABCDEF\n")
	writeFile(t, dir, DMIProductName, "  Standard PC (i440FX + PIIX, 1996)  \n")

	dmi := &DMI{Root: dir}

	got, err := dmi.Get(DMISystemUUID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "EC2E1916-9099-7CAF-FD21-012345ABCDEF" {
		t.Errorf("uuid = %q", got)
	}

	lower, err := dmi.GetLower(DMISystemUUID)
	if err != nil {
		t.Fatalf("GetLower() error = %v", err)
	}
	if lower != "ec2e1916-9099-7caf-fd21-012345abcdef" {
		t.Errorf("lower uuid = %q", lower)
	}

	// Missing assets are an empty value, not an error.
	missing, err := dmi.Get(DMISerialNumber)
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if missing != "" {
		t.Errorf("missing asset = %q, want empty", missing)
	}
}

func TestCmdlineDatasourceOverride(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantName string
		wantOK   bool
	}{
		{"no override", "ro quiet splash", "", false},
		{"simple", "ro ds=nocloud quiet", "nocloud", true},
		{"with settings", "ds=nocloud;seedfrom=/media/seed/", "nocloud", true},
		{"case normalized", "ds=NoCloud", "nocloud", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "cmdline", tt.content)

			c := &Cmdline{Path: path}
			name, ok, err := c.DatasourceOverride()
			if err != nil {
				t.Fatalf("DatasourceOverride() error = %v", err)
			}
			if ok != tt.wantOK || name != tt.wantName {
				t.Errorf("got (%q, %v), want (%q, %v)", name, ok, tt.wantName, tt.wantOK)
			}
		})
	}
}

func TestCmdlineDisabled(t *testing.T) {
	dir := t.TempDir()

	c := &Cmdline{Path: writeFile(t, dir, "on", "ro cloudseed=disabled")}
	disabled, err := c.Disabled()
	if err != nil {
		t.Fatal(err)
	}
	if !disabled {
		t.Error("expected disabled")
	}

	c = &Cmdline{Path: writeFile(t, dir, "off", "ro quiet")}
	disabled, err = c.Disabled()
	if err != nil {
		t.Fatal(err)
	}
	if disabled {
		t.Error("expected enabled")
	}
}
