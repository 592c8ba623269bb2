// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "strings"

// PREP field keys and the report columns added by the match stage.
const (
	FieldPatient             = "PATIENT"
	FieldReporter            = "REPORTER"
	FieldEvent               = "EVENT"
	FieldProduct             = "PRODUCT"
	FieldOriginalDescription = "Original Description"
	FieldMatchedTitle        = "Matched Article Title"
	FieldMatchedPMID         = "Matched PubMed ID"
)

// Sentinel values written in place of real data.
const (
	NotFound          = "Not found"
	NotApplicable     = "N/A"
	SearchNotPossible = "Search not possible (missing data)."
	NoMatchingArticle = "No matching article found."
	SearchFailed      = "Search failed."
)

// PREPFields lists the four extracted fields in prompt order.
var PREPFields = []string{FieldPatient, FieldReporter, FieldEvent, FieldProduct}

// ReportColumns is the fixed column order of the CSV report.
var ReportColumns = []string{
	FieldOriginalDescription,
	FieldPatient,
	FieldReporter,
	FieldEvent,
	FieldProduct,
	FieldMatchedTitle,
	FieldMatchedPMID,
}

// Record is an extraction record: the PREP fields, the source abstract, and
// any extra labeled lines the model produced. The match stage adds the two
// Matched columns to the same map.
type Record map[string]string

// Resolved reports whether key holds a usable value: present, non-empty,
// and not the "Not found" sentinel.
func (r Record) Resolved(key string) bool {
	v := strings.TrimSpace(r[key])
	return v != "" && v != NotFound
}

// FillMissing sets every absent or empty PREP field to the "Not found" sentinel.
func (r Record) FillMissing() {
	for _, f := range PREPFields {
		if strings.TrimSpace(r[f]) == "" {
			r[f] = NotFound
		}
	}
}

// Row projects the record onto ReportColumns. Missing columns become empty strings.
func (r Record) Row() []string {
	row := make([]string, len(ReportColumns))
	for i, col := range ReportColumns {
		row[i] = r[col]
	}
	return row
}
