package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, pnr, user_id, route, passengers, contact_email, total_cents, base_price_cents, currency, selected_flight, ticket_url, status, created_at, updated_at`

type PGBookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) *PGBookingRepository {
	return &PGBookingRepository{db: db}
}

func (r *PGBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	route, err := json.Marshal(booking.Route)
	if err != nil {
		return fmt.Errorf("marshal route: %w", err)
	}
	passengers, err := json.Marshal(booking.Passengers)
	if err != nil {
		return fmt.Errorf("marshal passengers: %w", err)
	}
	var selected any
	if len(booking.SelectedFlight) > 0 {
		selected = string(booking.SelectedFlight)
	}

	_, err = r.db.Exec(ctx, `INSERT INTO bookings (`+bookingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		booking.ID, booking.PNR, booking.UserID, string(route), string(passengers), booking.ContactEmail,
		booking.TotalCents, booking.BasePriceCents, booking.Currency, selected, booking.TicketURL,
		string(booking.Status), booking.CreatedAt, booking.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r *PGBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=$1`, id)
	return scanBooking(row)
}

func (r *PGBookingRepository) ListByUser(ctx context.Context, userID string) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (r *PGBookingRepository) List(ctx context.Context, offset, limit int) ([]domain.Booking, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM bookings`).Scan(&total); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = total
	}
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	bookings, err := collectBookings(rows)
	return bookings, total, err
}

func (r *PGBookingRepository) UpdateStatus(ctx context.Context, id string, change domain.StatusChange) (*domain.Booking, error) {
	row := r.db.QueryRow(ctx, `UPDATE bookings
		SET status=$2,
		    ticket_url = CASE WHEN $3::text = '' THEN ticket_url ELSE $3::text END,
		    updated_at=now()
		WHERE id=$1 AND status = ANY($4)
		RETURNING `+bookingColumns, id, string(change.To), change.TicketURL, allowedSources(change))
	updated, err := scanBooking(row)
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

func (r *PGBookingRepository) ListPendingBefore(ctx context.Context, deadline time.Time) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `SELECT `+bookingColumns+` FROM bookings
		WHERE status=$1 AND created_at <= $2
		ORDER BY created_at`, string(domain.BookingStatusPending), deadline)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b          domain.Booking
		status     string
		route      []byte
		passengers []byte
		selected   []byte
	)
	err := row.Scan(&b.ID, &b.PNR, &b.UserID, &route, &passengers, &b.ContactEmail, &b.TotalCents,
		&b.BasePriceCents, &b.Currency, &selected, &b.TicketURL, &status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(route, &b.Route); err != nil {
		return nil, fmt.Errorf("decode route of booking %s: %w", b.ID, err)
	}
	if err := json.Unmarshal(passengers, &b.Passengers); err != nil {
		return nil, fmt.Errorf("decode passengers of booking %s: %w", b.ID, err)
	}
	if len(selected) > 0 {
		b.SelectedFlight = json.RawMessage(selected)
	}
	b.Status = domain.BookingStatus(status)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]domain.Booking, error) {
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

var _ BookingRepository = (*PGBookingRepository)(nil)
