package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Repository is the persistence boundary for payments. Updates are
// conditional on the row still being PENDING so repeated or concurrent
// callbacks can never move a terminal payment.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	GetByPropertyID(ctx context.Context, propertyID string) (*Payment, error)
	CompletePending(ctx context.Context, transactionID string, c Completion) (bool, error)
	FailPending(ctx context.Context, transactionID string) (bool, error)
	ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error)

	SaveCallback(ctx context.Context, checkoutRequestID string, resultCode int, payload json.RawMessage) (int64, error)
	MarkCallbackProcessed(ctx context.Context, callbackID int64) error
	MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `id, transaction_id, receipt_number, provider_receipt, amount, phone_number,
		payment_method, payment_status, transaction_date, user_id, property_id, created_at, updated_at`

func (r *repository) Create(ctx context.Context, p *Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (
			id, transaction_id, receipt_number, amount, phone_number,
			payment_method, payment_status, transaction_date, user_id, property_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`,
		p.ID, p.TransactionID, p.ReceiptNumber, p.Amount, p.PhoneNumber,
		p.PaymentMethod, p.PaymentStatus, p.TransactionDate, p.UserID, p.PropertyID,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.TransactionID, err)
	}
	return nil
}

func (r *repository) GetByTransactionID(ctx context.Context, transactionID string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE transaction_id = $1
	`, transactionID)

	return scanPayment(row)
}

func (r *repository) GetByPropertyID(ctx context.Context, propertyID string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments WHERE property_id = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, propertyID)

	return scanPayment(row)
}

func scanPayment(row *sql.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.TransactionID, &p.ReceiptNumber, &p.ProviderReceipt, &p.Amount, &p.PhoneNumber,
		&p.PaymentMethod, &p.PaymentStatus, &p.TransactionDate, &p.UserID, &p.PropertyID,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) CompletePending(ctx context.Context, transactionID string, c Completion) (bool, error) {
	var (
		amount   decimal.NullDecimal
		receipt  sql.NullString
		txDate   sql.NullTime
		phoneNum sql.NullString
	)
	if c.Amount != nil {
		amount = decimal.NullDecimal{Decimal: *c.Amount, Valid: true}
	}
	if c.ProviderReceipt != nil {
		receipt = sql.NullString{String: *c.ProviderReceipt, Valid: true}
	}
	if c.TransactionDate != nil {
		txDate = sql.NullTime{Time: *c.TransactionDate, Valid: true}
	}
	if c.PhoneNumber != nil {
		phoneNum = sql.NullString{String: *c.PhoneNumber, Valid: true}
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET
			payment_status = $2,
			amount = COALESCE($3, amount),
			provider_receipt = COALESCE($4, provider_receipt),
			transaction_date = COALESCE($5, transaction_date),
			phone_number = COALESCE($6, phone_number),
			updated_at = now()
		WHERE transaction_id = $1 AND payment_status = $7
	`, transactionID, StatusCompleted, amount, receipt, txDate, phoneNum, StatusPending)
	if err != nil {
		return false, fmt.Errorf("complete payment %s: %w", transactionID, err)
	}
	return affected(res)
}

func (r *repository) FailPending(ctx context.Context, transactionID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET payment_status = $2, updated_at = now()
		WHERE transaction_id = $1 AND payment_status = $3
	`, transactionID, StatusFailed, StatusPending)
	if err != nil {
		return false, fmt.Errorf("fail payment %s: %w", transactionID, err)
	}
	return affected(res)
}

func (r *repository) ExpirePending(ctx context.Context, createdBefore time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE payments SET payment_status = $1, updated_at = now()
		WHERE payment_status = $2 AND created_at < $3
	`, StatusFailed, StatusPending, createdBefore)
	if err != nil {
		return 0, fmt.Errorf("expire pending payments: %w", err)
	}
	return res.RowsAffected()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *repository) SaveCallback(
	ctx context.Context,
	checkoutRequestID string,
	resultCode int,
	payload json.RawMessage,
) (int64, error) {

	const q = `
	INSERT INTO payment_callbacks (
		provider,
		checkout_request_id,
		result_code,
		payload
	)
	VALUES ($1, $2, $3, $4)
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q, MethodMpesa, checkoutRequestID, resultCode, []byte(payload)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) MarkCallbackProcessed(ctx context.Context, callbackID int64) error {
	const q = `
	UPDATE payment_callbacks
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID)
	return err
}

func (r *repository) MarkCallbackFailed(ctx context.Context, callbackID int64, reason string) error {
	const q = `
	UPDATE payment_callbacks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, callbackID, reason)
	return err
}
