package repository

import (
	"context"
	"errors"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ticketColumns = `id, user_id, subject, message, status, priority, created_at, updated_at`

type PGSupportTicketRepository struct {
	db *pgxpool.Pool
}

func NewSupportTicketRepository(db *pgxpool.Pool) *PGSupportTicketRepository {
	return &PGSupportTicketRepository{db: db}
}

func (r *PGSupportTicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) error {
	_, err := r.db.Exec(ctx, `INSERT INTO support_tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ticket.ID, ticket.UserID, ticket.Subject, ticket.Message, string(ticket.Status),
		string(ticket.Priority), ticket.CreatedAt, ticket.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func (r *PGSupportTicketRepository) GetByID(ctx context.Context, id string) (*domain.SupportTicket, error) {
	row := r.db.QueryRow(ctx, `SELECT `+ticketColumns+` FROM support_tickets WHERE id=$1`, id)
	return scanTicket(row)
}

func (r *PGSupportTicketRepository) ListByUser(ctx context.Context, userID string) ([]domain.SupportTicket, error) {
	rows, err := r.db.Query(ctx, `SELECT `+ticketColumns+` FROM support_tickets
		WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tickets := make([]domain.SupportTicket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *t)
	}
	return tickets, rows.Err()
}

func (r *PGSupportTicketRepository) Update(ctx context.Context, ticket *domain.SupportTicket) error {
	tag, err := r.db.Exec(ctx, `UPDATE support_tickets SET status=$2, priority=$3, updated_at=$4 WHERE id=$1`,
		ticket.ID, string(ticket.Status), string(ticket.Priority), ticket.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.SupportTicket, error) {
	var (
		t                domain.SupportTicket
		status, priority string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.Subject, &t.Message, &status, &priority, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = domain.TicketStatus(status)
	t.Priority = domain.TicketPriority(priority)
	return &t, nil
}

var _ SupportTicketRepository = (*PGSupportTicketRepository)(nil)
