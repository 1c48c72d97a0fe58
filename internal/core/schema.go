package core

import "strings"

// Canonical column names.
const (
	ColPartnerID          = "partner_id"
	ColPartnerName        = "partner_name"
	ColMpnID              = "mpn_id"
	ColTier2MpnID         = "tier2_mpn_id"
	ColCustomerID         = "customer_id"
	ColCustomerName       = "customer_name"
	ColCustomerDomainName = "customer_domain_name"
	ColCountry            = "country"
	ColProductID          = "product_id"
	ColSkuID              = "sku_id"
	ColSkuName            = "sku_name"
	ColProductName        = "product_name"
	ColMeterType          = "meter_type"
	ColCategory           = "category"
	ColSubCategory        = "sub_category"
	ColUnitType           = "unit_type"
	ColInvoiceNumber      = "invoice_number"
	ColChargeStartDate    = "charge_start_date"
	ColUsageDate          = "usage_date"
	ColQuantity           = "quantity"
	ColUnitPrice          = "unit_price"
	ColBillingPreTaxTotal = "billing_pre_tax_total"
	ColResourceLocation   = "resource_location"
	ColTags               = "tags"
	ColBenefitType        = "benefit_type"
)

// UsageSchema is the column contract for usage files.
var UsageSchema = []FieldSpec{
	{Name: ColPartnerID, Type: FieldIdentifier, Required: true},
	{Name: ColCustomerID, Type: FieldIdentifier, Required: true},
	{Name: ColProductID, Type: FieldIdentifier, Required: true},
	{Name: ColUsageDate, Type: FieldDate, Required: true},
	{Name: ColQuantity, Type: FieldDecimal, Required: true},
	{Name: ColUnitPrice, Type: FieldDecimal, Required: true},

	{Name: ColPartnerName, Type: FieldText},
	{Name: ColMpnID, Type: FieldIdentifier},
	{Name: ColTier2MpnID, Type: FieldIdentifier},
	{Name: ColCustomerName, Type: FieldText},
	{Name: ColCustomerDomainName, Type: FieldText},
	{Name: ColCountry, Type: FieldText},
	{Name: ColSkuID, Type: FieldIdentifier},
	{Name: ColSkuName, Type: FieldText},
	{Name: ColProductName, Type: FieldText},
	{Name: ColMeterType, Type: FieldText},
	{Name: ColCategory, Type: FieldText},
	{Name: ColSubCategory, Type: FieldText},
	{Name: ColUnitType, Type: FieldText},
	{Name: ColInvoiceNumber, Type: FieldIdentifier},
	{Name: ColChargeStartDate, Type: FieldDate},
	{Name: ColBillingPreTaxTotal, Type: FieldDecimal},
	{Name: ColResourceLocation, Type: FieldText},
	{Name: ColTags, Type: FieldText},
	{Name: ColBenefitType, Type: FieldText},
}

// RequiredColumns returns the names of the required fields in schema order.
func RequiredColumns(schema []FieldSpec) []string {
	var cols []string
	for _, f := range schema {
		if f.Required {
			cols = append(cols, f.Name)
		}
	}
	return cols
}

// vendorAliases maps squashed vendor export headers to canonical names.
// Canonical names themselves are added by init.
var vendorAliases = map[string]string{
	"tier2mpn":         ColTier2MpnID,
	"customerdomain":   ColCustomerDomainName,
	"customercountry":  ColCountry,
	"metercategory":    ColCategory,
	"metersubcategory": ColSubCategory,
}

var headerAliases = map[string]string{}

func init() {
	for _, f := range UsageSchema {
		headerAliases[squashHeader(f.Name)] = f.Name
	}
	for k, v := range vendorAliases {
		headerAliases[k] = v
	}
}

// squashHeader lowercases h and removes spaces, underscores and hyphens.
func squashHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '_', '-', '\t', '\u00a0':
			return -1
		}
		return r
	}, h)
}

// NormalizeHeader maps a header cell to its canonical column name, so
// "Partner ID", "partnerId" and "PARTNER_ID" all become "partner_id".
// Unknown headers are returned squashed and are ignored by the schema.
func NormalizeHeader(h string) string {
	key := squashHeader(CleanCell(h))
	if canonical, ok := headerAliases[key]; ok {
		return canonical
	}
	return key
}
