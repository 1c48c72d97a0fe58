package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rawRow builds a RawRow from text cells.
func rawRow(line int, cells map[string]string) RawRow {
	row := RawRow{Line: line, Cells: make(map[string]Cell, len(cells))}
	for k, v := range cells {
		row.Cells[k] = Cell{Text: v}
	}
	return row
}

// validCells returns the cells of a complete, valid usage row.
func validCells() map[string]string {
	return map[string]string{
		ColPartnerID:  "P001",
		ColCustomerID: "C001",
		ColProductID:  "PRD001",
		ColUsageDate:  "2024-01-15",
		ColQuantity:   "10.5",
		ColUnitPrice:  "25.50",
	}
}

func TestNormalize_TypedValues(t *testing.T) {
	cells := validCells()
	cells[ColPartnerName] = "  Acme Reseller "
	cells[ColChargeStartDate] = "01/01/2024"
	cells[ColBillingPreTaxTotal] = "267,75"
	cells[ColMpnID] = `="00123"`

	row := Normalize(rawRow(2, cells), UsageSchema)

	assert.Equal(t, 2, row.Line)
	assert.Empty(t, row.Errors)
	assert.Equal(t, "P001", row.Text(ColPartnerID))
	assert.Equal(t, "Acme Reseller", row.Text(ColPartnerName))
	assert.Equal(t, "00123", row.Text(ColMpnID))

	qty, ok := row.Decimal(ColQuantity)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("10.5").Equal(qty))

	total, ok := row.Decimal(ColBillingPreTaxTotal)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("267.75").Equal(total))

	usageDate, ok := row.Date(ColUsageDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), usageDate)

	charge, ok := row.Date(ColChargeStartDate)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), charge)
}

func TestNormalize_AbsentAndBlankCells(t *testing.T) {
	cells := validCells()
	cells[ColCustomerName] = "   "
	delete(cells, ColUnitPrice)

	row := Normalize(rawRow(3, cells), UsageSchema)

	assert.Empty(t, row.Errors)
	assert.False(t, row.Values[ColCustomerName].Present)
	assert.False(t, row.Values[ColUnitPrice].Present)
	assert.False(t, row.Values[ColTags].Present)
	assert.Equal(t, FieldDecimal, row.Values[ColUnitPrice].Type)
}

func TestNormalize_MalformedCells(t *testing.T) {
	tests := []struct {
		name   string
		column string
		value  string
		reason string
	}{
		{"bad date", ColUsageDate, "2024-13-45", "invalid date"},
		{"bad quantity", ColQuantity, "ten", "invalid decimal"},
		{"bad optional date", ColChargeStartDate, "soon", "invalid date"},
		{"bad optional total", ColBillingPreTaxTotal, "n/a", "invalid decimal"},
		{"quantity beyond numeric range", ColQuantity, "1e400000000", "invalid decimal"},
		{"hex unit price", ColUnitPrice, "0x10", "invalid decimal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cells := validCells()
			cells[tt.column] = tt.value

			row := Normalize(rawRow(4, cells), UsageSchema)

			require.Len(t, row.Errors, 1)
			ferr := row.Errors[0]
			assert.Equal(t, tt.column, ferr.Column)
			assert.Equal(t, tt.value, ferr.RawValue)
			assert.Equal(t, tt.reason, ferr.Reason)
			assert.False(t, row.Values[tt.column].Present)
		})
	}
}

func TestNormalize_SpreadsheetDateCell(t *testing.T) {
	date := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	raw := rawRow(2, validCells())
	raw.Cells[ColUsageDate] = Cell{Text: "45306", Date: date, IsDate: true}

	row := Normalize(raw, UsageSchema)

	require.Empty(t, row.Errors)
	got, ok := row.Date(ColUsageDate)
	require.True(t, ok)
	assert.Equal(t, date, got)
}

func TestNormalize_DateSerialFallback(t *testing.T) {
	jan15 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cell Cell
	}{
		{"csv text serial", Cell{Text: "45306"}},
		{"unstyled spreadsheet number", Cell{Text: "45306", Number: 45306, IsNumber: true}},
		{"1904 workbook", Cell{Text: "43844", Number: 43844, IsNumber: true, Date1904: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawRow(2, validCells())
			raw.Cells[ColUsageDate] = tt.cell

			row := Normalize(raw, UsageSchema)

			require.Empty(t, row.Errors)
			got, ok := row.Date(ColUsageDate)
			require.True(t, ok)
			assert.Equal(t, jan15, got)
		})
	}
}

func TestNormalize_SpreadsheetDateCellInTextColumn(t *testing.T) {
	raw := rawRow(2, validCells())
	raw.Cells[ColInvoiceNumber] = Cell{Text: "45306", Date: time.Now(), IsDate: true}

	row := Normalize(raw, UsageSchema)

	assert.Equal(t, "45306", row.Text(ColInvoiceNumber))
}
