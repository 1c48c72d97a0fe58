package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var resolvedAt = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

// typedRows normalizes cell maps with UsageSchema, numbering lines from 2.
func typedRows(cells ...map[string]string) []TypedRow {
	rows := make([]TypedRow, len(cells))
	for i, c := range cells {
		rows[i] = Normalize(rawRow(i+2, c), UsageSchema)
	}
	return rows
}

// resolveRows feeds rows through one resolver in order.
func resolveRows(rows []TypedRow, now time.Time) (*Dataset, error) {
	r := NewEntityResolver(now)
	for _, row := range rows {
		r.Add(row)
	}
	return r.Dataset()
}

func withCells(overrides map[string]string) map[string]string {
	c := validCells()
	for k, v := range overrides {
		c[k] = v
	}
	return c
}

func TestResolve_SingleRow(t *testing.T) {
	ds, err := resolveRows(typedRows(validCells()), resolvedAt)
	require.NoError(t, err)

	assert.Equal(t, EntityCounts{Partners: 1, Customers: 1, Products: 1, Usages: 1}, ds.Counts())

	u := ds.Usages[0]
	assert.Equal(t, "P001", u.PartnerID)
	assert.Equal(t, "C001", u.CustomerID)
	assert.Equal(t, "PRD001", u.ProductID)
	assert.True(t, decimal.RequireFromString("267.75").Equal(u.PreTaxTotal), "got %s", u.PreTaxTotal)
	assert.Nil(t, u.ChargeStartDate)

	assert.Equal(t, resolvedAt, ds.Customers[0].CreatedAt)
}

func TestResolve_FirstOccurrenceWins(t *testing.T) {
	rows := typedRows(
		withCells(map[string]string{ColPartnerName: "First Name", ColCustomerName: "Alpha"}),
		withCells(map[string]string{ColPartnerName: "Second Name", ColCustomerName: "Beta", ColQuantity: "2"}),
		withCells(map[string]string{ColPartnerID: "P002", ColPartnerName: "Other"}),
	)

	ds, err := resolveRows(rows, resolvedAt)
	require.NoError(t, err)

	require.Len(t, ds.Partners, 2)
	assert.Equal(t, "First Name", ds.Partners[0].Name)
	assert.Equal(t, "P002", ds.Partners[1].PartnerID)
	require.Len(t, ds.Customers, 1)
	assert.Equal(t, "Alpha", ds.Customers[0].Name)
	assert.Len(t, ds.Usages, 3, "every accepted row is a usage")
}

func TestResolve_ProductNameFallsBackToSkuName(t *testing.T) {
	tests := []struct {
		name  string
		cells map[string]string
		want  string
	}{
		{"product name given", map[string]string{ColProductName: "Office 365", ColSkuName: "E3"}, "Office 365"},
		{"sku name only", map[string]string{ColSkuName: "E3"}, "E3"},
		{"neither", map[string]string{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := resolveRows(typedRows(withCells(tt.cells)), resolvedAt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ds.Products[0].Name)
		})
	}
}

func TestResolve_PreTaxTotal(t *testing.T) {
	tests := []struct {
		name  string
		cells map[string]string
		want  string
	}{
		{"explicit total kept", map[string]string{ColBillingPreTaxTotal: "100.00"}, "100"},
		{"derived from quantity and price", map[string]string{ColQuantity: "3", ColUnitPrice: "1,25"}, "3.75"},
		{"malformed total derived", map[string]string{ColBillingPreTaxTotal: "n/a", ColQuantity: "2", ColUnitPrice: "5"}, "10"},
	}

	v := NewRowValidator(UsageSchema)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kept, rej := v.Check(Normalize(rawRow(2, withCells(tt.cells)), UsageSchema))
			require.Nil(t, rej)

			ds, err := resolveRows([]TypedRow{kept}, resolvedAt)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(ds.Usages[0].PreTaxTotal), "got %s", ds.Usages[0].PreTaxTotal)
		})
	}
}

func TestResolve_ChargeStartDate(t *testing.T) {
	ds, err := resolveRows(typedRows(withCells(map[string]string{ColChargeStartDate: "2024-01-01"})), resolvedAt)
	require.NoError(t, err)

	require.NotNil(t, ds.Usages[0].ChargeStartDate)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *ds.Usages[0].ChargeStartDate)
}

func TestVerifyReferences(t *testing.T) {
	base := func() *Dataset {
		return &Dataset{
			Partners:  []Partner{{PartnerID: "P1"}},
			Customers: []Customer{{CustomerID: "C1"}},
			Products:  []Product{{ProductID: "X1"}},
			Usages:    []Usage{{PartnerID: "P1", CustomerID: "C1", ProductID: "X1"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Dataset)
		wantErr string
	}{
		{"consistent", func(*Dataset) {}, ""},
		{"duplicate partner", func(d *Dataset) { d.Partners = append(d.Partners, Partner{PartnerID: "P1"}) }, `duplicate partner identifier "P1"`},
		{"duplicate product", func(d *Dataset) { d.Products = append(d.Products, Product{ProductID: "X1"}) }, `duplicate product identifier "X1"`},
		{"unknown customer", func(d *Dataset) { d.Usages[0].CustomerID = "C9" }, `usage 0 references unknown customer "C9"`},
		{"unknown product", func(d *Dataset) { d.Usages[0].ProductID = "X9" }, `usage 0 references unknown product "X9"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := base()
			tt.mutate(ds)

			err := VerifyReferences(ds)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var rerr *ResolutionError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, tt.wantErr, rerr.Detail)
			assert.Equal(t, KindResolution, ErrorKind(err))
		})
	}
}
