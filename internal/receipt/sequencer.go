// Package receipt issues the zero-padded, ledger-wide receipt numbers shown
// to payers. Numbers continue from the last COMPLETED payment.
package receipt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const (
	width       = 3
	counterName = "payments"
)

// Kinds accepted by the RECEIPT_SEQUENCER setting.
const (
	KindLedger  = "ledger"
	KindCounter = "counter"
	KindRedis   = "redis"
)

// Format pads n to the receipt width. Wider numbers are kept as is.
func Format(n int64) string {
	return fmt.Sprintf("%0*d", width, n)
}

const lastCompletedQuery = `
	SELECT receipt_number
	FROM payments
	WHERE payment_status = 'COMPLETED' AND receipt_number ~ '^[0-9]+$'
	ORDER BY created_at DESC
	LIMIT 1
`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// lastCompleted returns the receipt number of the newest completed payment,
// or zero for an empty ledger.
func lastCompleted(ctx context.Context, q queryer) (int64, error) {
	var raw string
	err := q.QueryRowContext(ctx, lastCompletedQuery).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last receipt: %w", err)
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse receipt %q: %w", raw, err)
	}
	return n, nil
}

// LedgerSequencer derives the next number straight from the ledger. Two
// concurrent calls can read the same last receipt and return the same
// number; use CounterSequencer or RedisSequencer where that matters.
type LedgerSequencer struct {
	db *sql.DB
}

func NewLedgerSequencer(db *sql.DB) *LedgerSequencer {
	return &LedgerSequencer{db: db}
}

func (s *LedgerSequencer) Next(ctx context.Context) (string, error) {
	n, err := lastCompleted(ctx, s.db)
	if err != nil {
		return "", err
	}
	return Format(n + 1), nil
}

// CounterSequencer keeps a row in receipt_counters and increments it with a
// single upsert, so concurrent callers always get distinct numbers. The row
// is created on first use from the ledger's last completed receipt.
type CounterSequencer struct {
	db *sql.DB
}

func NewCounterSequencer(db *sql.DB) *CounterSequencer {
	return &CounterSequencer{db: db}
}

func (s *CounterSequencer) Next(ctx context.Context) (string, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO receipt_counters (name, value)
		VALUES ($1, COALESCE((
			SELECT receipt_number::bigint
			FROM payments
			WHERE payment_status = 'COMPLETED' AND receipt_number ~ '^[0-9]+$'
			ORDER BY created_at DESC
			LIMIT 1
		), 0) + 1)
		ON CONFLICT (name) DO UPDATE SET value = receipt_counters.value + 1
		RETURNING value
	`, counterName).Scan(&n)
	if err != nil {
		return "", fmt.Errorf("increment receipt counter: %w", err)
	}
	return Format(n), nil
}
