package core

// validation.go classifies normalized rows as accepted or rejected.
//
// A row is rejected when a required column is absent or failed
// normalization. Malformed optional fields are dropped from the row and
// the row is kept. Rejections are accumulated, never returned as errors,
// so one bad row cannot abort an import.

import (
	"strings"
)

// RowValidator checks typed rows against a schema.
type RowValidator struct {
	specs    []FieldSpec
	required map[string]bool
}

// NewRowValidator creates a validator for schema.
func NewRowValidator(schema []FieldSpec) *RowValidator {
	v := &RowValidator{specs: schema, required: make(map[string]bool)}
	for _, f := range schema {
		if f.Required {
			v.required[f.Name] = true
		}
	}
	return v
}

// Check returns the row to keep and a nil rejection, or a rejection.
// Errors on optional fields are removed from the returned row.
func (v *RowValidator) Check(row TypedRow) (TypedRow, *Rejection) {
	var problems []string
	failed := make(map[string]bool, len(row.Errors))

	for _, ferr := range row.Errors {
		failed[ferr.Column] = true
		if v.required[ferr.Column] {
			problems = append(problems, ferr.Error())
		}
	}

	for _, spec := range v.specs {
		if !spec.Required || failed[spec.Name] {
			continue
		}
		if !row.Values[spec.Name].Present {
			problems = append(problems, spec.Name+": required value is missing")
		}
	}

	if len(problems) > 0 {
		return row, &Rejection{Line: row.Line, Reason: strings.Join(problems, "; ")}
	}

	row.Errors = nil
	return row, nil
}

// ValidationReport accumulates the outcome of validating a whole file.
type ValidationReport struct {
	Rejected []Rejection

	rowsRead      int
	rowsRejected  int
	maxRejections int
}

// NewValidationReport keeps at most maxRejections rejection entries; zero
// keeps all. Counts are always exact.
func NewValidationReport(maxRejections int) *ValidationReport {
	return &ValidationReport{maxRejections: maxRejections}
}

// Reject records a rejected row.
func (r *ValidationReport) Reject(rej Rejection) {
	r.rowsRead++
	r.rowsRejected++
	if r.maxRejections <= 0 || len(r.Rejected) < r.maxRejections {
		r.Rejected = append(r.Rejected, rej)
	}
}

// Accept records an accepted row without retaining it.
func (r *ValidationReport) Accept() {
	r.rowsRead++
}

// RowsRead returns the number of data rows seen.
func (r *ValidationReport) RowsRead() int { return r.rowsRead }

// RowsRejected returns the number of rejected rows.
func (r *ValidationReport) RowsRejected() int { return r.rowsRejected }

// RowsAccepted returns the number of accepted rows.
func (r *ValidationReport) RowsAccepted() int { return r.rowsRead - r.rowsRejected }

// Err returns *NoValidRowsError when no row was accepted.
func (r *ValidationReport) Err() error {
	if r.RowsAccepted() > 0 {
		return nil
	}
	first := ""
	if len(r.Rejected) > 0 {
		first = r.Rejected[0].Reason
	}
	return &NoValidRowsError{RowsRead: r.rowsRead, FirstReason: first}
}
