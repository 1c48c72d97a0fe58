package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/usageimport/internal/core"
)

// replaceLockKey serializes dataset replacement across processes sharing
// one database.
const replaceLockKey int64 = 0x75736167655f6473

var (
	partnerColumns  = []string{"partner_id", "partner_name", "mpn_id", "tier2_mpn_id"}
	customerColumns = []string{"customer_id", "customer_name", "customer_domain_name", "country", "created_at"}
	productColumns  = []string{"product_id", "sku_id", "sku_name", "product_name", "meter_type", "category", "sub_category", "unit_type"}
	usageColumns    = []string{
		"position", "partner_id", "customer_id", "product_id",
		"usage_date", "charge_start_date", "quantity", "unit_price", "billing_pre_tax_total",
		"invoice_number", "resource_location", "tags", "benefit_type",
	}
)

// ReplaceDataset deletes the previous generation and loads gen in a single
// transaction. Readers see either the old or the new rows, never a mix.
func (s *Store) ReplaceDataset(ctx context.Context, gen *core.Generation) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.replaceIn(ctx, tx, gen); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// replaceIn runs the replacement statements on db, which must be a
// transaction for the swap to be atomic.
func (s *Store) replaceIn(ctx context.Context, db DBTX, gen *core.Generation) error {
	if _, err := db.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", replaceLockKey); err != nil {
		return fmt.Errorf("acquire replace lock: %w", err)
	}

	// Reverse dependency order.
	for _, table := range []string{"usages", "products", "customers", "partners"} {
		if _, err := db.Exec(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	ds := gen.Dataset
	if err := s.copyBatches(ctx, db, "partners", partnerColumns, len(ds.Partners), func(i int) []any {
		p := ds.Partners[i]
		return []any{p.PartnerID, p.Name, p.MpnID, p.Tier2MpnID}
	}); err != nil {
		return err
	}
	if err := s.copyBatches(ctx, db, "customers", customerColumns, len(ds.Customers), func(i int) []any {
		c := ds.Customers[i]
		return []any{c.CustomerID, c.Name, c.DomainName, c.Country, c.CreatedAt}
	}); err != nil {
		return err
	}
	if err := s.copyBatches(ctx, db, "products", productColumns, len(ds.Products), func(i int) []any {
		p := ds.Products[i]
		return []any{p.ProductID, p.SkuID, p.SkuName, p.Name, p.MeterType, p.Category, p.SubCategory, p.UnitType}
	}); err != nil {
		return err
	}
	if err := s.copyBatches(ctx, db, "usages", usageColumns, len(ds.Usages), func(i int) []any {
		u := ds.Usages[i]
		return []any{
			int32(i), u.PartnerID, u.CustomerID, u.ProductID,
			toPgDate(&u.UsageDate), toPgDate(u.ChargeStartDate),
			toPgNumeric(u.Quantity), toPgNumeric(u.UnitPrice), toPgNumeric(u.PreTaxTotal),
			u.InvoiceNumber, u.ResourceLocation, u.Tags, u.BenefitType,
		}
	}); err != nil {
		return err
	}

	counts := ds.Counts()
	_, err := db.Exec(ctx, `
		INSERT INTO dataset_generations
			(generation, import_run_id, committed_at, partners, customers, products, usages)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		gen.Number, gen.RunID, gen.CommittedAt,
		counts.Partners, counts.Customers, counts.Products, counts.Usages,
	)
	if err != nil {
		return fmt.Errorf("record generation: %w", err)
	}
	return nil
}

// copyBatches streams n rows into table with COPY, batchSize rows per call.
func (s *Store) copyBatches(ctx context.Context, db DBTX, table string, columns []string, n int, row func(int) []any) error {
	for start := 0; start < n; start += s.batchSize {
		end := min(start+s.batchSize, n)
		src := pgx.CopyFromSlice(end-start, func(i int) ([]any, error) {
			return row(start + i), nil
		})
		copied, err := db.CopyFrom(ctx, pgx.Identifier{table}, columns, src)
		if err != nil {
			return fmt.Errorf("copy %s rows %d-%d: %w", table, start, end, err)
		}
		if copied != int64(end-start) {
			return fmt.Errorf("copy %s: wrote %d of %d rows", table, copied, end-start)
		}
	}
	return nil
}

// LoadGeneration reads the latest generation and its rows from one
// repeatable-read snapshot.
func (s *Store) LoadGeneration(ctx context.Context) (*core.Generation, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	gen := &core.Generation{Dataset: &core.Dataset{}}
	err = tx.QueryRow(ctx, `
		SELECT generation, import_run_id, committed_at
		FROM dataset_generations
		ORDER BY generation DESC
		LIMIT 1`,
	).Scan(&gen.Number, &gen.RunID, &gen.CommittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read generation: %w", err)
	}

	if gen.Dataset.Partners, err = loadPartners(ctx, tx); err != nil {
		return nil, err
	}
	if gen.Dataset.Customers, err = loadCustomers(ctx, tx); err != nil {
		return nil, err
	}
	if gen.Dataset.Products, err = loadProducts(ctx, tx); err != nil {
		return nil, err
	}
	if gen.Dataset.Usages, err = loadUsages(ctx, tx); err != nil {
		return nil, err
	}
	return gen, nil
}

func loadPartners(ctx context.Context, db DBTX) ([]core.Partner, error) {
	rows, err := db.Query(ctx, `SELECT partner_id, partner_name, mpn_id, tier2_mpn_id FROM partners ORDER BY partner_id`)
	if err != nil {
		return nil, fmt.Errorf("query partners: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Partner, error) {
		var p core.Partner
		err := row.Scan(&p.PartnerID, &p.Name, &p.MpnID, &p.Tier2MpnID)
		return p, err
	})
}

func loadCustomers(ctx context.Context, db DBTX) ([]core.Customer, error) {
	rows, err := db.Query(ctx, `
		SELECT customer_id, customer_name, customer_domain_name, country, created_at
		FROM customers ORDER BY customer_id`)
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Customer, error) {
		var c core.Customer
		err := row.Scan(&c.CustomerID, &c.Name, &c.DomainName, &c.Country, &c.CreatedAt)
		c.CreatedAt = c.CreatedAt.UTC()
		return c, err
	})
}

func loadProducts(ctx context.Context, db DBTX) ([]core.Product, error) {
	rows, err := db.Query(ctx, `
		SELECT product_id, sku_id, sku_name, product_name, meter_type, category, sub_category, unit_type
		FROM products ORDER BY product_id`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Product, error) {
		var p core.Product
		err := row.Scan(&p.ProductID, &p.SkuID, &p.SkuName, &p.Name, &p.MeterType, &p.Category, &p.SubCategory, &p.UnitType)
		return p, err
	})
}

func loadUsages(ctx context.Context, db DBTX) ([]core.Usage, error) {
	rows, err := db.Query(ctx, `
		SELECT partner_id, customer_id, product_id, usage_date, charge_start_date,
		       quantity::text, unit_price::text, billing_pre_tax_total::text,
		       invoice_number, resource_location, tags, benefit_type
		FROM usages ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query usages: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.Usage, error) {
		var (
			u                       core.Usage
			usageDate, chargeStart  pgtype.Date
			quantity, price, preTax string
		)
		if err := row.Scan(
			&u.PartnerID, &u.CustomerID, &u.ProductID, &usageDate, &chargeStart,
			&quantity, &price, &preTax,
			&u.InvoiceNumber, &u.ResourceLocation, &u.Tags, &u.BenefitType,
		); err != nil {
			return u, err
		}

		u.UsageDate = usageDate.Time
		if chargeStart.Valid {
			t := chargeStart.Time
			u.ChargeStartDate = &t
		}

		var err error
		if u.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return u, fmt.Errorf("parse quantity: %w", err)
		}
		if u.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return u, fmt.Errorf("parse unit_price: %w", err)
		}
		if u.PreTaxTotal, err = decimal.NewFromString(preTax); err != nil {
			return u, fmt.Errorf("parse billing_pre_tax_total: %w", err)
		}
		return u, nil
	})
}

func toPgDate(t *time.Time) pgtype.Date {
	if t == nil || t.IsZero() {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

func toPgNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{}
	}
	return n
}
