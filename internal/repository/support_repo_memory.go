package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/Domenick1991/skybooking/internal/domain"
)

type MemorySupportTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.SupportTicket
}

func NewMemorySupportTicketRepository() *MemorySupportTicketRepository {
	return &MemorySupportTicketRepository{tickets: make(map[string]domain.SupportTicket)}
}

func (r *MemorySupportTicketRepository) Create(_ context.Context, ticket *domain.SupportTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; ok {
		return ErrDuplicate
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

func (r *MemorySupportTicketRepository) GetByID(_ context.Context, id string) (*domain.SupportTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (r *MemorySupportTicketRepository) ListByUser(_ context.Context, userID string) ([]domain.SupportTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SupportTicket, 0)
	for _, t := range r.tickets {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemorySupportTicketRepository) Update(_ context.Context, ticket *domain.SupportTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tickets[ticket.ID]; !ok {
		return ErrNotFound
	}
	r.tickets[ticket.ID] = *ticket
	return nil
}

var _ SupportTicketRepository = (*MemorySupportTicketRepository)(nil)
