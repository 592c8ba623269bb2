// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package records

import "github.com/pdiddy/prep-pipeline/pkg/types"

// MemoryAbstracts holds abstracts between stages run in one process.
type MemoryAbstracts struct {
	Lines []string
}

// ReadAbstracts returns a copy of the stored lines.
func (m *MemoryAbstracts) ReadAbstracts() ([]string, error) {
	return append([]string(nil), m.Lines...), nil
}

// WriteAbstracts replaces the stored lines.
func (m *MemoryAbstracts) WriteAbstracts(abstracts []string) error {
	m.Lines = append([]string(nil), abstracts...)
	return nil
}

// MemoryRecords holds extraction records between stages run in one process.
type MemoryRecords struct {
	Records []types.Record
}

// ReadRecords returns one entry per stored record, numbered from 1. Each
// entry holds a copy, so callers may modify it.
func (m *MemoryRecords) ReadRecords() ([]Entry, error) {
	entries := make([]Entry, len(m.Records))
	for i, r := range m.Records {
		entries[i] = Entry{Line: i + 1, Record: clone(r)}
	}
	return entries, nil
}

// Open discards previously stored records.
func (m *MemoryRecords) Open() error {
	m.Records = nil
	return nil
}

// WriteRecord stores a copy of r.
func (m *MemoryRecords) WriteRecord(r types.Record) error {
	m.Records = append(m.Records, clone(r))
	return nil
}

// Close is a no-op.
func (m *MemoryRecords) Close() error { return nil }

// MemoryReport captures the final report rows.
type MemoryReport struct {
	Rows    []types.Record
	Written bool
}

// WriteReport stores rows and marks the report as written.
func (m *MemoryReport) WriteReport(rows []types.Record) error {
	m.Rows = rows
	m.Written = true
	return nil
}

func clone(r types.Record) types.Record {
	cp := make(types.Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}
