package store

import (
	"context"
	"database/sql"
	"fmt"
)

// IsRiskyIBAN consults the IBAN registry. Unknown IBANs are not risky.
func (s *Store) IsRiskyIBAN(ctx context.Context, iban string) (bool, error) {
	const q = `SELECT is_risky FROM ibans WHERE iban = $1`
	var risky bool
	err := s.db.QueryRowContext(ctx, q, iban).Scan(&risky)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("risky iban lookup: %w", err)
	}
	return risky, nil
}
