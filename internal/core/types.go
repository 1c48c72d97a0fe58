package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FieldType represents the expected data type for an import column.
type FieldType int

const (
	FieldIdentifier FieldType = iota
	FieldText
	FieldDecimal
	FieldDate
)

func (t FieldType) String() string {
	switch t {
	case FieldIdentifier:
		return "identifier"
	case FieldText:
		return "text"
	case FieldDecimal:
		return "decimal"
	case FieldDate:
		return "date"
	default:
		return "unknown"
	}
}

// FieldSpec defines the type and presence rule for a single column.
type FieldSpec struct {
	Name     string    // Canonical column name after header aliasing
	Type     FieldType // Expected data type
	Required bool      // Row is rejected when the value is absent or malformed
}

// Cell is one raw value as decoded by a format reader.
type Cell struct {
	Text string

	// Date holds a spreadsheet-native date. When IsDate is set the normalizer
	// uses Date directly and never parses Text.
	Date   time.Time
	IsDate bool

	// Number is the raw value of a numeric spreadsheet cell. A date column
	// with an unstyled serial is converted from it using the workbook's
	// date system.
	Number   float64
	IsNumber bool
	Date1904 bool
}

// RawRow is one data row keyed by canonical column name.
type RawRow struct {
	Line  int // 1-based position in the source file
	Cells map[string]Cell
}

// Value is one normalized field. Present is false for absent values.
type Value struct {
	Type    FieldType
	Present bool
	Text    string
	Decimal decimal.Decimal
	Date    time.Time
}

// TypedRow is the normalizer output: typed values plus the per-field
// failures that the validator classifies.
type TypedRow struct {
	Line   int
	Values map[string]Value
	Errors []*FieldFormatError
}

// Text returns the string value of col, or "" when absent.
func (r TypedRow) Text(col string) string {
	return r.Values[col].Text
}

// Decimal returns the decimal value of col and whether it was present.
func (r TypedRow) Decimal(col string) (decimal.Decimal, bool) {
	v := r.Values[col]
	return v.Decimal, v.Present
}

// Date returns the date value of col and whether it was present.
func (r TypedRow) Date(col string) (time.Time, bool) {
	v := r.Values[col]
	return v.Date, v.Present
}

// Rejection records why a row was not accepted.
type Rejection struct {
	Line   int    `json:"row"`
	Reason string `json:"reason"`
}

// Partner is a reseller keyed by its business identifier.
type Partner struct {
	PartnerID  string `json:"partner_id"`
	Name       string `json:"partner_name"`
	MpnID      string `json:"mpn_id,omitempty"`
	Tier2MpnID string `json:"tier2_mpn_id,omitempty"`
}

// Customer is an end customer keyed by its business identifier.
type Customer struct {
	CustomerID string    `json:"customer_id"`
	Name       string    `json:"customer_name"`
	DomainName string    `json:"customer_domain_name,omitempty"`
	Country    string    `json:"country,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Product is a billable product keyed by its business identifier.
type Product struct {
	ProductID   string `json:"product_id"`
	SkuID       string `json:"sku_id,omitempty"`
	SkuName     string `json:"sku_name,omitempty"`
	Name        string `json:"product_name"`
	Category    string `json:"category,omitempty"`
	SubCategory string `json:"sub_category,omitempty"`
	UnitType    string `json:"unit_type,omitempty"`
	MeterType   string `json:"meter_type,omitempty"`
}

// Usage is one billed usage line. The three identifiers always resolve to
// entities of the same Dataset.
type Usage struct {
	PartnerID  string `json:"partner_id"`
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`

	UsageDate       time.Time       `json:"usage_date"`
	ChargeStartDate *time.Time      `json:"charge_start_date,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	PreTaxTotal     decimal.Decimal `json:"billing_pre_tax_total"`

	InvoiceNumber    string `json:"invoice_number,omitempty"`
	ResourceLocation string `json:"resource_location,omitempty"`
	Tags             string `json:"tags,omitempty"`
	BenefitType      string `json:"benefit_type,omitempty"`
}

// Dataset is a resolved entity graph. Collections keep first-seen order.
type Dataset struct {
	Partners  []Partner
	Customers []Customer
	Products  []Product
	Usages    []Usage
}

// Counts returns the entity counts of the dataset.
func (d *Dataset) Counts() EntityCounts {
	if d == nil {
		return EntityCounts{}
	}
	return EntityCounts{
		Partners:  len(d.Partners),
		Customers: len(d.Customers),
		Products:  len(d.Products),
		Usages:    len(d.Usages),
	}
}

// EntityCounts is the number of entities per kind in a dataset.
type EntityCounts struct {
	Partners  int `json:"partners"`
	Customers int `json:"customers"`
	Products  int `json:"products"`
	Usages    int `json:"usages"`
}

// Generation is one committed, immutable version of the dataset.
// Callers must not modify Dataset after the generation is published.
type Generation struct {
	Number      int64
	RunID       uuid.UUID
	CommittedAt time.Time
	Dataset     *Dataset
}

// ImportRun is the telemetry recorded for one import attempt.
type ImportRun struct {
	ID        uuid.UUID
	FileName  string
	SourceIP  string
	UserAgent string

	StartedAt  time.Time
	FinishedAt time.Time

	RowsRead     int
	RowsAccepted int
	RowsRejected int

	// Entities is nil for failed imports.
	Entities   *EntityCounts
	Generation int64

	Success       bool
	FailureKind   string
	FailureReason string
}

// Duration returns the wall time between start and finish.
func (r ImportRun) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ImportResult is returned by a successful import.
type ImportResult struct {
	Run        ImportRun
	Counts     EntityCounts
	Generation int64
	Rejections []Rejection
}
