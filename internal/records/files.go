// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package records

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// maxLineBytes bounds a single input line. Abstracts run a few kilobytes;
// the headroom covers pathological records.
const maxLineBytes = 4 << 20

// AbstractFile is a plain-text file with one abstract per line.
type AbstractFile struct {
	Path string
}

// ReadAbstracts returns every line of the file. A missing file yields an
// error wrapping types.ErrMissingInput.
func (f AbstractFile) ReadAbstracts() ([]string, error) {
	file, err := openInput(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return scanLines(file)
}

// WriteAbstracts replaces the file with one abstract per line.
func (f AbstractFile) WriteAbstracts(abstracts []string) error {
	return writeAtomic(f.Path, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		for _, a := range abstracts {
			if _, err := bw.WriteString(a + "\n"); err != nil {
				return err
			}
		}
		return bw.Flush()
	})
}

// JSONLFile is a line-delimited JSON file holding one extraction record per line.
type JSONLFile struct {
	Path string

	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// ReadRecords decodes every non-blank line. Malformed lines are returned as
// entries with Err wrapping types.ErrParse.
func (f *JSONLFile) ReadRecords() ([]Entry, error) {
	file, err := openInput(f.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	lines, err := scanLines(file)
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var rec types.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			entries = append(entries, Entry{Line: i + 1, Err: fmt.Errorf("%w: line %d: %v", types.ErrParse, i+1, err)})
			continue
		}
		if rec == nil {
			entries = append(entries, Entry{Line: i + 1, Err: fmt.Errorf("%w: line %d: not a JSON object", types.ErrParse, i+1)})
			continue
		}
		entries = append(entries, Entry{Line: i + 1, Record: rec})
	}
	return entries, nil
}

// Open truncates the file and prepares it for WriteRecord.
func (f *JSONLFile) Open() error {
	if dir := filepath.Dir(f.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(f.Path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", f.Path, err)
	}
	f.file = file
	f.buf = bufio.NewWriter(file)
	f.enc = json.NewEncoder(f.buf)
	f.enc.SetEscapeHTML(false)
	return nil
}

// WriteRecord appends r as one JSON line and flushes it to disk, so a crash
// keeps every record written so far.
func (f *JSONLFile) WriteRecord(r types.Record) error {
	if f.enc == nil {
		return fmt.Errorf("writing %s: sink not open", f.Path)
	}
	if err := f.enc.Encode(r); err != nil {
		return fmt.Errorf("writing %s: %w", f.Path, err)
	}
	return f.buf.Flush()
}

// Close flushes and closes the file. Closing an unopened sink is a no-op.
func (f *JSONLFile) Close() error {
	if f.file == nil {
		return nil
	}
	flushErr := f.buf.Flush()
	closeErr := f.file.Close()
	f.file, f.buf, f.enc = nil, nil, nil
	return errors.Join(flushErr, closeErr)
}

// CSVReport writes the final report as comma-separated values.
type CSVReport struct {
	Path string
}

// WriteReport replaces the file with a header row and one row per record,
// projected onto types.ReportColumns.
func (c CSVReport) WriteReport(rows []types.Record) error {
	return writeAtomic(c.Path, func(w io.Writer) error {
		return EncodeCSV(w, rows)
	})
}

// EncodeCSV writes the header and rows to w with RFC 4180 quoting and
// CRLF line endings.
func EncodeCSV(w io.Writer, rows []types.Record) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(types.ReportColumns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Row()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func openInput(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", types.ErrMissingInput, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return file, nil
}

func scanLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	var lines []string
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading lines: %w", err)
	}
	return lines, nil
}

// writeAtomic writes through a temporary file in the destination directory
// and renames it into place on success.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".prep-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writeErr := write(tmpFile)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", path, writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
