package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/repository"
	"github.com/Domenick1991/skybooking/internal/validation"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ticketSchema = validation.Schema{
	"subject": {
		validation.Required("Subject is required"),
		validation.MaxLength(200, "Subject must be at most 200 characters"),
	},
	"message": {
		validation.Required("Message is required"),
		validation.MinLength(10, "Message must be at least 10 characters"),
		validation.MaxLength(5000, "Message must be at most 5000 characters"),
	},
	"priority": {
		validation.OneOf([]string{
			string(domain.TicketPriorityLow), string(domain.TicketPriorityMedium), string(domain.TicketPriorityHigh),
		}, "Priority must be low, medium or high"),
	},
}

type SupportUseCase interface {
	Create(ctx context.Context, input CreateTicketInput) (*domain.SupportTicket, error)
	ListByUser(ctx context.Context, userID string) ([]domain.SupportTicket, error)
	AdminUpdate(ctx context.Context, ticketID string, input UpdateTicketInput) (*domain.SupportTicket, error)
}

type CreateTicketInput struct {
	UserID   string
	Subject  string
	Message  string
	Priority domain.TicketPriority
}

// UpdateTicketInput leaves nil fields unchanged.
type UpdateTicketInput struct {
	Status   *domain.TicketStatus
	Priority *domain.TicketPriority
}

type SupportService struct {
	tickets repository.SupportTicketRepository
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewSupportService(tickets repository.SupportTicketRepository, log logrus.FieldLogger) *SupportService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SupportService{
		tickets: tickets,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *SupportService) Create(ctx context.Context, input CreateTicketInput) (*domain.SupportTicket, error) {
	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)
	if input.Priority == "" {
		input.Priority = domain.TicketPriorityMedium
	}

	form := validation.NewForm(ticketSchema)
	if !form.ValidateForm(map[string]string{
		"subject":  input.Subject,
		"message":  input.Message,
		"priority": string(input.Priority),
	}) {
		return nil, domain.NewError(domain.KindInvalidRequest, "Invalid support ticket: "+form.Errors().String())
	}

	now := s.now()
	ticket := &domain.SupportTicket{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		Subject:   input.Subject,
		Message:   input.Message,
		Status:    domain.TicketStatusOpen,
		Priority:  input.Priority,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to create support ticket", err)
	}

	s.log.WithFields(logrus.Fields{"ticket_id": ticket.ID, "user_id": ticket.UserID}).Info("support ticket created")
	return ticket, nil
}

func (s *SupportService) ListByUser(ctx context.Context, userID string) ([]domain.SupportTicket, error) {
	tickets, err := s.tickets.ListByUser(ctx, userID)
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to list support tickets", err)
	}
	return tickets, nil
}

func (s *SupportService) AdminUpdate(ctx context.Context, ticketID string, input UpdateTicketInput) (*domain.SupportTicket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.NewError(domain.KindTicketNotFound, fmt.Sprintf("support ticket %s not found", ticketID))
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to load support ticket", err)
	}

	if input.Status != nil {
		switch *input.Status {
		case domain.TicketStatusOpen, domain.TicketStatusInProgress, domain.TicketStatusResolved, domain.TicketStatusClosed:
			ticket.Status = *input.Status
		default:
			return nil, domain.NewError(domain.KindInvalidRequest, fmt.Sprintf("unknown ticket status %q", *input.Status))
		}
	}
	if input.Priority != nil {
		switch *input.Priority {
		case domain.TicketPriorityLow, domain.TicketPriorityMedium, domain.TicketPriorityHigh:
			ticket.Priority = *input.Priority
		default:
			return nil, domain.NewError(domain.KindInvalidRequest, fmt.Sprintf("unknown ticket priority %q", *input.Priority))
		}
	}
	ticket.UpdatedAt = s.now()

	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, domain.WrapError(domain.KindInternal, "failed to update support ticket", err)
	}
	return ticket, nil
}

var _ SupportUseCase = (*SupportService)(nil)
