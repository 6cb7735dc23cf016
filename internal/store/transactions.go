package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// SaveTransaction inserts an immutable transaction record. Rows are never
// updated after the insert; the schema enforces the score and decision ranges.
func (s *Store) SaveTransaction(
	ctx context.Context,
	txID, iban string,
	amount decimal.Decimal,
	vendorID int64,
	invoiceNumber string,
	score int,
	decision string,
	riskFactors []string,
) error {
	const q = `
		INSERT INTO transactions
			(transaction_id, iban, amount, vendor_id, invoice_number,
			 fraud_score, decision, risk_factors, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, CURRENT_TIMESTAMP)`
	_, err := s.db.ExecContext(ctx, q,
		txID, iban, amount.String(), vendorID, invoiceNumber,
		score, decision, pq.Array(riskFactors),
	)
	if err != nil {
		return fmt.Errorf("save transaction %s: %w", invoiceNumber, err)
	}
	return nil
}

// CountByIBANSince is the durable fallback for the velocity rule when the
// KV window is unreadable.
func (s *Store) CountByIBANSince(ctx context.Context, iban string, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE iban = $1 AND created_at >= $2`
	var n int
	if err := s.db.QueryRowContext(ctx, q, iban, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions by iban: %w", err)
	}
	return n, nil
}

// CountByVendorSince mirrors CountByIBANSince for the vendor dimension.
func (s *Store) CountByVendorSince(ctx context.Context, vendorID int64, since time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE vendor_id = $1 AND created_at >= $2`
	var n int
	if err := s.db.QueryRowContext(ctx, q, vendorID, since).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions by vendor: %w", err)
	}
	return n, nil
}
