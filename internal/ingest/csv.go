package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// CSVSource streams rows from a delimited text file, decoding from the
// detected encoding and mapping each row onto the header columns.
type CSVSource struct {
	file     *os.File
	reader   *csv.Reader
	columns  []string
	encoding string
	rowNum   int64
}

// OpenCSV detects the file's encoding, reads its header and returns a
// source positioned at the first data row.
func OpenCSV(path string, log *slog.Logger) (*CSVSource, error) {
	enc, err := DetectEncoding(path, log)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r := csv.NewReader(enc.NewReader(f))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("%s: file is empty", path)
		}
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	columns := make([]string, len(header))
	for i, c := range header {
		columns[i] = strings.TrimSpace(c)
	}

	return &CSVSource{
		file:     f,
		reader:   r,
		columns:  columns,
		encoding: enc.Name,
	}, nil
}

// Columns returns the trimmed header names.
func (s *CSVSource) Columns() []string { return s.columns }

// Encoding returns the name of the encoding the file is decoded with.
func (s *CSVSource) Encoding() string { return s.encoding }

// Next returns the next data row. Malformed rows (wrong field count, bare
// quotes) are returned with Row.Err set so the caller can count them and
// continue; only I/O level failures abort the stream.
func (s *CSVSource) Next() (Row, error) {
	rec, err := s.reader.Read()
	if err == io.EOF {
		return Row{}, io.EOF
	}

	s.rowNum++
	if err != nil {
		var pe *csv.ParseError
		if errors.As(err, &pe) {
			return Row{Number: s.rowNum, Err: err}, nil
		}
		return Row{}, fmt.Errorf("read row %d: %w", s.rowNum, err)
	}

	fields := make(map[string]string, len(s.columns))
	for i, col := range s.columns {
		if i < len(rec) {
			fields[col] = rec[i]
		}
	}
	return Row{Number: s.rowNum, Fields: fields}, nil
}

// Close releases the underlying file. Safe to call more than once.
func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// CountDataRows counts the data rows of a delimited file in a single fast
// pass. Malformed rows still count; they occupy a row number in the stream.
func CountDataRows(path string, log *slog.Logger) (int, error) {
	src, err := OpenCSV(path, log)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	n := 0
	for {
		_, err := src.Next()
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

// ValidateCSV reports whether a file can be processed as delimited text,
// with a reason when it cannot. Empty files, files with no columns and files
// with a header but no data rows are distinguished.
func ValidateCSV(path string, log *slog.Logger) (bool, string) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Sprintf("cannot stat file: %v", err)
	}
	if info.Size() == 0 {
		return false, "file is empty"
	}

	src, err := OpenCSV(path, log)
	if err != nil {
		return false, fmt.Sprintf("cannot parse file: %v", err)
	}
	defer src.Close()

	if len(src.Columns()) == 0 || (len(src.Columns()) == 1 && src.Columns()[0] == "") {
		return false, "file has no columns"
	}

	rows := 0
	for rows < 10 {
		_, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, fmt.Sprintf("cannot parse file: %v", err)
		}
		rows++
	}
	if rows == 0 {
		return false, "file has no data rows"
	}

	return true, ""
}
