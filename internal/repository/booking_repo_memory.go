package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
)

// MemoryBookingRepository keeps bookings for the lifetime of the process.
type MemoryBookingRepository struct {
	mu    sync.RWMutex
	byID  map[string]*domain.Booking
	byPNR map[string]string
	now   func() time.Time
}

func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{
		byID:  make(map[string]*domain.Booking),
		byPNR: make(map[string]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryBookingRepository) Create(_ context.Context, booking *domain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[booking.ID]; ok {
		return ErrDuplicate
	}
	if _, ok := r.byPNR[booking.PNR]; ok {
		return ErrDuplicate
	}
	r.byID[booking.ID] = booking.Clone()
	r.byPNR[booking.PNR] = booking.ID
	return nil
}

func (r *MemoryBookingRepository) GetByID(_ context.Context, id string) (*domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

func (r *MemoryBookingRepository) ListByUser(_ context.Context, userID string) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Booking, 0)
	for _, b := range r.byID {
		if b.UserID == userID {
			out = append(out, *b.Clone())
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (r *MemoryBookingRepository) List(_ context.Context, offset, limit int) ([]domain.Booking, int, error) {
	r.mu.RLock()
	all := make([]domain.Booking, 0, len(r.byID))
	for _, b := range r.byID {
		all = append(all, *b.Clone())
	}
	r.mu.RUnlock()

	sortNewestFirst(all)
	total := len(all)
	if offset >= total {
		return []domain.Booking{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryBookingRepository) UpdateStatus(_ context.Context, id string, change domain.StatusChange) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !change.Allows(b.Status) {
		return b.Clone(), ErrStatusConflict
	}
	b.Status = change.To
	if change.TicketURL != "" {
		b.TicketURL = change.TicketURL
	}
	b.UpdatedAt = r.now()
	return b.Clone(), nil
}

func (r *MemoryBookingRepository) ListPendingBefore(_ context.Context, deadline time.Time) ([]domain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Booking
	for _, b := range r.byID {
		if b.Status == domain.BookingStatusPending && !b.CreatedAt.After(deadline) {
			out = append(out, *b.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func sortNewestFirst(bookings []domain.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
}

var _ BookingRepository = (*MemoryBookingRepository)(nil)
