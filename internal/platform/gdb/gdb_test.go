package gdb

import (
	"archive/zip"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeGDBZip builds a zip holding the given entries. Directory entries end
// with a slash.
func writeGDBZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create zip: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range entries {
		if name[len(name)-1] == '/' {
			if _, err := zw.Create(name); err != nil {
				t.Fatalf("zip dir %s: %v", name, err)
			}
			continue
		}
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip entry %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return path
}

func TestExtract_FindsGDBDirectory(t *testing.T) {
	zipPath := writeGDBZip(t, map[string]string{
		"Parcels.gdb/":        "",
		"Parcels.gdb/gdb":     "stub",
		"Parcels.gdb/a00.spx": "stub",
		"metadata/readme.txt": "notes",
	})

	scratch := filepath.Join(t.TempDir(), "scratch")
	gdbPath, err := Extract(zipPath, scratch, discardLogger())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if filepath.Base(gdbPath) != "Parcels.gdb" {
		t.Errorf("gdb path = %s", gdbPath)
	}
	if _, err := os.Stat(filepath.Join(gdbPath, "gdb")); err != nil {
		t.Errorf("extracted file missing: %v", err)
	}
}

func TestExtract_NestedGDBDirectory(t *testing.T) {
	zipPath := writeGDBZip(t, map[string]string{
		"delivery/2024/Parcels.GDB/gdb": "stub",
	})

	scratch := filepath.Join(t.TempDir(), "scratch")
	gdbPath, err := Extract(zipPath, scratch, discardLogger())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if filepath.Base(gdbPath) != "Parcels.GDB" {
		t.Errorf("gdb path = %s, want the nested .GDB directory", gdbPath)
	}
}

func TestExtract_NoGDBDirectory(t *testing.T) {
	zipPath := writeGDBZip(t, map[string]string{
		"data.csv": "A,B\n1,2\n",
	})

	scratch := filepath.Join(t.TempDir(), "scratch")
	if _, err := Extract(zipPath, scratch, discardLogger()); err == nil {
		t.Fatal("expected error when the archive has no .gdb directory")
	}
}

func TestExtract_RejectsEscapingEntries(t *testing.T) {
	zipPath := writeGDBZip(t, map[string]string{
		"../escape.txt": "nope",
	})

	scratch := filepath.Join(t.TempDir(), "scratch")
	if _, err := Extract(zipPath, scratch, discardLogger()); err == nil {
		t.Fatal("expected error for a path-escaping entry")
	}
}

func TestCleanup_Idempotent(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "scratch")
	gdbDir := filepath.Join(scratch, "Parcels.gdb")
	if err := os.MkdirAll(gdbDir, 0o755); err != nil {
		t.Fatal(err)
	}

	// Given the .gdb directory, the parent scratch directory goes away.
	Cleanup(gdbDir, discardLogger())
	if _, err := os.Stat(scratch); !os.IsNotExist(err) {
		t.Errorf("scratch directory still present: %v", err)
	}

	// Second call on the same path is a no-op.
	Cleanup(gdbDir, discardLogger())
	Cleanup("", discardLogger())
}

func TestGeometryTypeLabel(t *testing.T) {
	tests := []struct {
		wkt  string
		want string
	}{
		{"POINT (1 2)", "Point"},
		{"LINESTRING (0 0, 1 1)", "LineString"},
		{"POLYGON ((0 0, 1 0, 1 1, 0 0))", "Polygon"},
		{"MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))", "MultiPolygon"},
		{"MULTIPOINT (1 1, 2 2)", "MultiPoint"},
		{"MULTILINESTRING ((0 0, 1 1))", "MultiLineString"},
		{"GEOMETRYCOLLECTION (POINT (1 1))", "GeometryCollection"},
		{"POLYGON Z ((0 0 0, 1 0 0, 1 1 0, 0 0 0))", "Polygon"},
		{"  MULTIPOLYGON (((0 0, 1 0, 1 1, 0 0)))", "MultiPolygon"},
	}
	for _, tt := range tests {
		if got := GeometryTypeLabel(tt.wkt); got != tt.want {
			t.Errorf("GeometryTypeLabel(%q) = %q, want %q", tt.wkt, got, tt.want)
		}
	}
}
