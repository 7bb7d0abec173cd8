package bootstrap

import (
	"context"
	"fmt"

	"github.com/Domenick1991/skybooking/config"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Stores struct {
	Bookings repository.BookingRepository
	Payments repository.PaymentRepository
	Tickets  repository.SupportTicketRepository

	pool *pgxpool.Pool
}

// OpenStores builds the record stores for the configured driver. The
// postgres schema is applied before the stores are returned.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	if cfg.Storage.Driver != "postgres" {
		return &Stores{
			Bookings: repository.NewMemoryBookingRepository(),
			Payments: repository.NewMemoryPaymentRepository(),
			Tickets:  repository.NewMemorySupportTicketRepository(),
		}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Stores{
		Bookings: repository.NewBookingRepository(pool),
		Payments: repository.NewPaymentRepository(pool),
		Tickets:  repository.NewSupportTicketRepository(pool),
		pool:     pool,
	}, nil
}

func (s *Stores) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
