package ingest

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenCSV_HeaderAndRows(t *testing.T) {
	path := writeTempFile(t, "retr.csv", []byte("PARCEL_ID, SALE_AMOUNT\n123,5000\n456,7000\n"))

	src, err := OpenCSV(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	cols := src.Columns()
	if len(cols) != 2 || cols[0] != "PARCEL_ID" || cols[1] != "SALE_AMOUNT" {
		t.Fatalf("columns = %v", cols)
	}

	row, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Number != 1 {
		t.Errorf("first data row number = %d, want 1", row.Number)
	}
	if row.Fields["PARCEL_ID"] != "123" || row.Fields["SALE_AMOUNT"] != "5000" {
		t.Errorf("fields = %v", row.Fields)
	}

	row, err = src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if row.Number != 2 {
		t.Errorf("second data row number = %d, want 2", row.Number)
	}

	if _, err := src.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after last row, got %v", err)
	}
}

func TestCSVSource_MalformedRowIsRowLevel(t *testing.T) {
	// Row 2 has a bare quote; rows before and after must still stream.
	path := writeTempFile(t, "bad.csv", []byte("A,B\n1,2\n\"x,3\n4,5\n"))

	src, err := OpenCSV(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	row, err := src.Next()
	if err != nil || row.Err != nil {
		t.Fatalf("row 1: err=%v rowErr=%v", err, row.Err)
	}

	row, err = src.Next()
	if err != nil {
		t.Fatalf("row 2 should be a row-level failure, got stream error %v", err)
	}
	if row.Err == nil {
		t.Fatal("row 2 should carry a parse error")
	}
	if row.Number != 2 {
		t.Errorf("failed row keeps its number: got %d, want 2", row.Number)
	}
}

func TestCSVSource_ShortRowMapsPresentColumns(t *testing.T) {
	path := writeTempFile(t, "short.csv", []byte("A,B,C\n1,2,3\n"))
	src, err := OpenCSV(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer src.Close()

	row, err := src.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if len(row.Fields) != 3 || row.Fields["C"] != "3" {
		t.Errorf("fields = %v", row.Fields)
	}
}

func TestCSVSource_CloseIdempotent(t *testing.T) {
	path := writeTempFile(t, "x.csv", []byte("A\n1\n"))
	src, err := OpenCSV(path, discardLogger())
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCountDataRows(t *testing.T) {
	path := writeTempFile(t, "count.csv", []byte("A,B\n1,2\n3,4\n5,6\n"))
	n, err := CountDataRows(path, discardLogger())
	if err != nil {
		t.Fatalf("CountDataRows: %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

func TestValidateCSV(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		ok      bool
		reason  string
	}{
		{"valid", []byte("A,B\n1,2\n"), true, ""},
		{"empty file", nil, false, "file is empty"},
		{"header only", []byte("A,B\n"), false, "file has no data rows"},
		{"blank header", []byte(" \nx\n"), false, "file has no columns"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempFile(t, "f.csv", tt.content)
			ok, reason := ValidateCSV(path, discardLogger())
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v (reason %q)", ok, tt.ok, reason)
			}
			if tt.reason != "" && reason != tt.reason {
				t.Errorf("reason = %q, want %q", reason, tt.reason)
			}
		})
	}
}

func TestValidateCSV_MissingFile(t *testing.T) {
	ok, reason := ValidateCSV(filepath.Join(t.TempDir(), "nope.csv"), discardLogger())
	if ok {
		t.Fatal("expected failure for missing file")
	}
	if reason == "" {
		t.Error("expected a reason")
	}
}
