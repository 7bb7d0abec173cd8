package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/support"
	"github.com/gin-gonic/gin"
)

type SupportHandler struct {
	service support.SupportUseCase
}

type createTicketRequest struct {
	Subject  string `json:"subject"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

type ticketResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
	Status    string `json:"status"`
	Priority  string `json:"priority"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func toTicketResponse(t *domain.SupportTicket) ticketResponse {
	return ticketResponse{
		ID:        t.ID,
		UserID:    t.UserID,
		Subject:   t.Subject,
		Message:   t.Message,
		Status:    string(t.Status),
		Priority:  string(t.Priority),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func NewSupportHandler(service support.SupportUseCase) *SupportHandler {
	return &SupportHandler{service: service}
}

func (h *SupportHandler) Register(router *gin.RouterGroup) {
	router.POST("/support/tickets", h.create)
	router.GET("/user/support/tickets", h.listMine)
}

func (h *SupportHandler) create(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid support ticket")
		return
	}
	ticket, err := h.service.Create(c.Request.Context(), support.CreateTicketInput{
		UserID:   identityFrom(c).UserID,
		Subject:  req.Subject,
		Message:  req.Message,
		Priority: domain.TicketPriority(req.Priority),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "ticket": toTicketResponse(ticket)})
}

func (h *SupportHandler) listMine(c *gin.Context) {
	tickets, err := h.service.ListByUser(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]ticketResponse, 0, len(tickets))
	for i := range tickets {
		out = append(out, toTicketResponse(&tickets[i]))
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "tickets": out})
}
