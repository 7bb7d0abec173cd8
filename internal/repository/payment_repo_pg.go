package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const paymentColumns = `id, booking_id, user_id, amount_cents, currency, method, status, reference, failure_reason, created_at, updated_at`

type PGPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *pgxpool.Pool) *PGPaymentRepository {
	return &PGPaymentRepository{db: db}
}

func (r *PGPaymentRepository) Create(ctx context.Context, txn *domain.PaymentTransaction) error {
	_, err := r.db.Exec(ctx, `INSERT INTO payment_transactions (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.BookingID, txn.UserID, txn.AmountCents, txn.Currency, string(txn.Method),
		string(txn.Status), txn.Reference, txn.FailureReason, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *PGPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE id=$1`, id)
	return scanPayment(row)
}

func (r *PGPaymentRepository) FindSettledByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	if reference == "" {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payment_transactions
		WHERE reference=$1 AND status IN ($2, $3)`,
		reference, string(domain.TransactionStatusCompleted), string(domain.TransactionStatusRefunded))
	return scanPayment(row)
}

func (r *PGPaymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.PaymentTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+paymentColumns+` FROM payment_transactions WHERE booking_id=$1 ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]domain.PaymentTransaction, 0)
	for rows.Next() {
		txn, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *txn)
	}
	return txns, rows.Err()
}

func (r *PGPaymentRepository) UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus) (*domain.PaymentTransaction, error) {
	row := r.db.QueryRow(ctx, `UPDATE payment_transactions SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3
		RETURNING `+paymentColumns, id, string(to), string(from))
	updated, err := scanPayment(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, ErrStatusConflict
}

func scanPayment(row pgx.Row) (*domain.PaymentTransaction, error) {
	var (
		txn            domain.PaymentTransaction
		method, status string
	)
	err := row.Scan(&txn.ID, &txn.BookingID, &txn.UserID, &txn.AmountCents, &txn.Currency, &method,
		&status, &txn.Reference, &txn.FailureReason, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	txn.Method = domain.PaymentMethod(method)
	txn.Status = domain.TransactionStatus(status)
	return &txn, nil
}

var _ PaymentRepository = (*PGPaymentRepository)(nil)
