// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package records defines the typed boundaries between pipeline stages and
// their file and in-memory implementations. A stage reads from a source and
// writes to a sink; whether the other side is a file on disk or the next
// stage in the same process is the caller's choice.
package records

import (
	"github.com/pdiddy/prep-pipeline/pkg/types"
)

// AbstractSource yields raw abstract lines in file order, blank lines
// included, so consumers can apply index-based caps.
type AbstractSource interface {
	ReadAbstracts() ([]string, error)
}

// AbstractSink receives the complete set of harvested abstracts.
type AbstractSink interface {
	WriteAbstracts(abstracts []string) error
}

// Entry is one input line of a record stream. Err is set, and Record is
// nil, when the line could not be decoded.
type Entry struct {
	Line   int
	Record types.Record
	Err    error
}

// RecordSource yields extraction records.
type RecordSource interface {
	ReadRecords() ([]Entry, error)
}

// RecordSink receives extraction records one at a time. Open starts a fresh
// output; Close flushes it.
type RecordSink interface {
	Open() error
	WriteRecord(r types.Record) error
	Close() error
}

// ReportSink receives the final, enriched records.
type ReportSink interface {
	WriteReport(rows []types.Record) error
}
