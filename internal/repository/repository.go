package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrStatusConflict = errors.New("status transition not allowed from current status")
)

type BookingRepository interface {
	// Create stores a new booking. Both ID and PNR must be unused.
	Create(ctx context.Context, booking *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	// ListByUser returns the user's bookings, newest first.
	ListByUser(ctx context.Context, userID string) ([]domain.Booking, error)
	// List returns a page of all bookings, newest first, and the total count.
	List(ctx context.Context, offset, limit int) ([]domain.Booking, int, error)
	// UpdateStatus applies change atomically. When the current status is not
	// accepted it returns the current booking together with ErrStatusConflict.
	UpdateStatus(ctx context.Context, id string, change domain.StatusChange) (*domain.Booking, error)
	// ListPendingBefore returns pending bookings created at or before
	// deadline, oldest first.
	ListPendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error)
}

type PaymentRepository interface {
	// Create stores a transaction. A completed transaction whose reference is
	// already settled is rejected with ErrDuplicate.
	Create(ctx context.Context, txn *domain.PaymentTransaction) error
	GetByID(ctx context.Context, id string) (*domain.PaymentTransaction, error)
	// FindSettledByReference returns the completed or refunded transaction with reference.
	FindSettledByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error)
	ListByBooking(ctx context.Context, bookingID string) ([]domain.PaymentTransaction, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.TransactionStatus) (*domain.PaymentTransaction, error)
}

type SupportTicketRepository interface {
	Create(ctx context.Context, ticket *domain.SupportTicket) error
	GetByID(ctx context.Context, id string) (*domain.SupportTicket, error)
	ListByUser(ctx context.Context, userID string) ([]domain.SupportTicket, error)
	Update(ctx context.Context, ticket *domain.SupportTicket) error
}

// allowedSources keeps only the statuses of change.From that have an edge to change.To.
func allowedSources(change domain.StatusChange) []string {
	out := make([]string, 0, len(change.From))
	for _, s := range change.From {
		if s.CanTransitionTo(change.To) {
			out = append(out, string(s))
		}
	}
	return out
}

const postgresUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolation
}

func isSettled(s domain.TransactionStatus) bool {
	return s == domain.TransactionStatusCompleted || s == domain.TransactionStatusRefunded
}
