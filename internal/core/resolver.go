package core

import (
	"fmt"
	"time"
)

// EntityResolver builds a Dataset from accepted rows. Partners, customers
// and products are deduplicated by identifier; the first row to mention an
// identifier supplies its descriptive fields and later rows never
// overwrite them.
type EntityResolver struct {
	ds        *Dataset
	partners  map[string]int
	customers map[string]int
	products  map[string]int
	now       time.Time
}

// NewEntityResolver creates an empty resolver. now stamps new customers.
func NewEntityResolver(now time.Time) *EntityResolver {
	return &EntityResolver{
		ds:        &Dataset{},
		partners:  make(map[string]int),
		customers: make(map[string]int),
		products:  make(map[string]int),
		now:       now.UTC(),
	}
}

// Add upserts the row's partner, customer and product and appends one usage.
func (r *EntityResolver) Add(row TypedRow) {
	partnerID := row.Text(ColPartnerID)
	if _, ok := r.partners[partnerID]; !ok {
		r.partners[partnerID] = len(r.ds.Partners)
		r.ds.Partners = append(r.ds.Partners, Partner{
			PartnerID:  partnerID,
			Name:       row.Text(ColPartnerName),
			MpnID:      row.Text(ColMpnID),
			Tier2MpnID: row.Text(ColTier2MpnID),
		})
	}

	customerID := row.Text(ColCustomerID)
	if _, ok := r.customers[customerID]; !ok {
		r.customers[customerID] = len(r.ds.Customers)
		r.ds.Customers = append(r.ds.Customers, Customer{
			CustomerID: customerID,
			Name:       row.Text(ColCustomerName),
			DomainName: row.Text(ColCustomerDomainName),
			Country:    row.Text(ColCountry),
			CreatedAt:  r.now,
		})
	}

	productID := row.Text(ColProductID)
	if _, ok := r.products[productID]; !ok {
		name := row.Text(ColProductName)
		if name == "" {
			name = row.Text(ColSkuName)
		}
		r.products[productID] = len(r.ds.Products)
		r.ds.Products = append(r.ds.Products, Product{
			ProductID:   productID,
			SkuID:       row.Text(ColSkuID),
			SkuName:     row.Text(ColSkuName),
			Name:        name,
			Category:    row.Text(ColCategory),
			SubCategory: row.Text(ColSubCategory),
			UnitType:    row.Text(ColUnitType),
			MeterType:   row.Text(ColMeterType),
		})
	}

	quantity, _ := row.Decimal(ColQuantity)
	unitPrice, _ := row.Decimal(ColUnitPrice)
	usageDate, _ := row.Date(ColUsageDate)

	total, ok := row.Decimal(ColBillingPreTaxTotal)
	if !ok {
		total = quantity.Mul(unitPrice)
	}

	u := Usage{
		PartnerID:        partnerID,
		CustomerID:       customerID,
		ProductID:        productID,
		UsageDate:        usageDate,
		Quantity:         quantity,
		UnitPrice:        unitPrice,
		PreTaxTotal:      total,
		InvoiceNumber:    row.Text(ColInvoiceNumber),
		ResourceLocation: row.Text(ColResourceLocation),
		Tags:             row.Text(ColTags),
		BenefitType:      row.Text(ColBenefitType),
	}
	if d, ok := row.Date(ColChargeStartDate); ok {
		u.ChargeStartDate = &d
	}
	r.ds.Usages = append(r.ds.Usages, u)
}

// Dataset verifies the graph and returns it. The resolver must not be used
// afterwards.
func (r *EntityResolver) Dataset() (*Dataset, error) {
	if err := VerifyReferences(r.ds); err != nil {
		return nil, err
	}
	return r.ds, nil
}

// VerifyReferences checks identifier uniqueness and that every usage points
// at entities present in ds.
func VerifyReferences(ds *Dataset) error {
	partners, err := keySet(len(ds.Partners), func(i int) string { return ds.Partners[i].PartnerID }, "partner")
	if err != nil {
		return err
	}
	customers, err := keySet(len(ds.Customers), func(i int) string { return ds.Customers[i].CustomerID }, "customer")
	if err != nil {
		return err
	}
	products, err := keySet(len(ds.Products), func(i int) string { return ds.Products[i].ProductID }, "product")
	if err != nil {
		return err
	}

	for i, u := range ds.Usages {
		switch {
		case !partners[u.PartnerID]:
			return &ResolutionError{Detail: fmt.Sprintf("usage %d references unknown partner %q", i, u.PartnerID)}
		case !customers[u.CustomerID]:
			return &ResolutionError{Detail: fmt.Sprintf("usage %d references unknown customer %q", i, u.CustomerID)}
		case !products[u.ProductID]:
			return &ResolutionError{Detail: fmt.Sprintf("usage %d references unknown product %q", i, u.ProductID)}
		}
	}
	return nil
}

func keySet(n int, key func(int) string, kind string) (map[string]bool, error) {
	set := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		k := key(i)
		if set[k] {
			return nil, &ResolutionError{Detail: fmt.Sprintf("duplicate %s identifier %q", kind, k)}
		}
		set[k] = true
	}
	return set, nil
}
