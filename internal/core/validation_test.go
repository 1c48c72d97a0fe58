package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// RowValidator Tests
// ============================================================================

func TestRowValidator_Check(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(map[string]string)
		wantReject bool
		wantReason string
	}{
		{
			name:   "complete row",
			mutate: func(map[string]string) {},
		},
		{
			name:       "missing partner",
			mutate:     func(c map[string]string) { delete(c, ColPartnerID) },
			wantReject: true,
			wantReason: "partner_id: required value is missing",
		},
		{
			name:       "blank customer",
			mutate:     func(c map[string]string) { c[ColCustomerID] = "  " },
			wantReject: true,
			wantReason: "customer_id: required value is missing",
		},
		{
			name:       "malformed required date",
			mutate:     func(c map[string]string) { c[ColUsageDate] = "yesterday" },
			wantReject: true,
			wantReason: `usage_date: invalid date "yesterday"`,
		},
		{
			name: "two problems",
			mutate: func(c map[string]string) {
				c[ColQuantity] = "abc"
				delete(c, ColProductID)
			},
			wantReject: true,
			wantReason: `quantity: invalid decimal "abc"; product_id: required value is missing`,
		},
		{
			name:   "malformed optional field is dropped",
			mutate: func(c map[string]string) { c[ColChargeStartDate] = "not a date" },
		},
	}

	v := NewRowValidator(UsageSchema)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := validCells()
			tt.mutate(cells)

			kept, rej := v.Check(Normalize(rawRow(7, cells), UsageSchema))
			if !tt.wantReject {
				require.Nil(t, rej)
				assert.Empty(t, kept.Errors)
				return
			}
			require.NotNil(t, rej)
			assert.Equal(t, 7, rej.Line)
			assert.Equal(t, tt.wantReason, rej.Reason)
		})
	}
}

func TestRowValidator_OptionalFieldRemovedFromRow(t *testing.T) {
	cells := validCells()
	cells[ColChargeStartDate] = "13/13/2024"

	kept, rej := NewRowValidator(UsageSchema).Check(Normalize(rawRow(2, cells), UsageSchema))

	require.Nil(t, rej)
	_, ok := kept.Date(ColChargeStartDate)
	assert.False(t, ok)
}

// ============================================================================
// ValidationReport Tests
// ============================================================================

func TestValidationReport_Counts(t *testing.T) {
	r := NewValidationReport(0)
	r.Accept()
	r.Reject(Rejection{Line: 3, Reason: "a"})
	r.Accept()

	assert.Equal(t, 3, r.RowsRead())
	assert.Equal(t, 2, r.RowsAccepted())
	assert.Equal(t, 1, r.RowsRejected())
	assert.NoError(t, r.Err())
}

func TestValidationReport_CapsRetainedRejections(t *testing.T) {
	r := NewValidationReport(2)
	for i := 0; i < 5; i++ {
		r.Reject(Rejection{Line: i + 2, Reason: "bad"})
	}

	assert.Len(t, r.Rejected, 2)
	assert.Equal(t, 5, r.RowsRejected())
	assert.Equal(t, 2, r.Rejected[0].Line)
}

func TestValidationReport_NoValidRows(t *testing.T) {
	r := NewValidationReport(0)
	r.Reject(Rejection{Line: 2, Reason: "partner_id: required value is missing"})
	r.Reject(Rejection{Line: 3, Reason: "other"})

	err := r.Err()
	var noRows *NoValidRowsError
	require.ErrorAs(t, err, &noRows)
	assert.Equal(t, 2, noRows.RowsRead)
	assert.Equal(t, "partner_id: required value is missing", noRows.FirstReason)
	assert.Equal(t, KindNoValidRows, ErrorKind(err))
}

func TestRowValidator_StreamedRows(t *testing.T) {
	good := validCells()
	bad := validCells()
	delete(bad, ColQuantity)

	v := NewRowValidator(UsageSchema)
	report := NewValidationReport(0)
	var kept []int
	for _, raw := range []RawRow{rawRow(2, good), rawRow(3, bad), rawRow(4, good)} {
		row, rej := v.Check(Normalize(raw, UsageSchema))
		if rej != nil {
			report.Reject(*rej)
			continue
		}
		report.Accept()
		kept = append(kept, row.Line)
	}

	require.NoError(t, report.Err())
	assert.Equal(t, []int{2, 4}, kept)
	assert.Equal(t, 3, report.RowsRead())
	assert.Equal(t, 2, report.RowsAccepted())
	require.Len(t, report.Rejected, 1)
	assert.Equal(t, 3, report.Rejected[0].Line)
}
