package reports

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"12 - Sales", "Sales.rdl"},
		{"12-Sales", "Sales.rdl"},
		{"3 -  Network Map.rdl", "Network Map.rdl"},
		{"Sales.RDL", "Sales.RDL"},
		{"Sales", "Sales.rdl"},
		{"Q1 - Sales", "Q1 - Sales.rdl"},
		{"2024", "2024.rdl"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDirOpen(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, DirName)
	if err := os.Mkdir(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "Sales.rdl"), []byte("<Report/>"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "secret.rdl"), []byte("nope"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.rdl"), 0o755); err != nil {
		t.Fatal(err)
	}
	d := NewDir(dir)

	f, name, err := d.Open("7 - Sales")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	b, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil || string(b) != "<Report/>" || name != "Sales.rdl" {
		t.Errorf("Open = %q %q %v", name, b, err)
	}

	for _, n := range []string{"Missing", "../secret", "..", "", "sub", `..\secret`} {
		if _, _, err := d.Open(n); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrNotFound", n, err)
		}
	}

	if _, _, err := NewDir(filepath.Join(base, "absent")).Open("Sales"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing dir error = %v", err)
	}
}
