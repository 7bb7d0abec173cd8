package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
)

type MemoryPaymentRepository struct {
	mu   sync.RWMutex
	byID map[string]domain.PaymentTransaction
	// settled indexes completed and refunded transactions by settlement reference.
	settled map[string]string
	now     func() time.Time
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		byID:    make(map[string]domain.PaymentTransaction),
		settled: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, txn *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[txn.ID]; ok {
		return ErrDuplicate
	}
	if isSettled(txn.Status) && txn.Reference != "" {
		if _, ok := r.settled[txn.Reference]; ok {
			return ErrDuplicate
		}
		r.settled[txn.Reference] = txn.ID
	}
	r.byID[txn.ID] = *txn
	return nil
}

func (r *MemoryPaymentRepository) GetByID(_ context.Context, id string) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	txn, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &txn, nil
}

func (r *MemoryPaymentRepository) FindSettledByReference(_ context.Context, reference string) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.settled[reference]
	if !ok || reference == "" {
		return nil, ErrNotFound
	}
	txn := r.byID[id]
	return &txn, nil
}

func (r *MemoryPaymentRepository) ListByBooking(_ context.Context, bookingID string) ([]domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.PaymentTransaction, 0)
	for _, txn := range r.byID {
		if txn.BookingID == bookingID {
			out = append(out, txn)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryPaymentRepository) UpdateStatus(_ context.Context, id string, from, to domain.TransactionStatus) (*domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	txn, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if txn.Status != from {
		return &txn, ErrStatusConflict
	}
	txn.Status = to
	txn.UpdatedAt = r.now()
	r.byID[id] = txn
	return &txn, nil
}

var _ PaymentRepository = (*MemoryPaymentRepository)(nil)
