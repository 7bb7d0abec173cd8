package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/skybooking/internal/domain"
	"github.com/Domenick1991/skybooking/internal/service/flights"
	"github.com/gin-gonic/gin"
)

type FlightHandler struct {
	service flights.FlightUseCase
}

func NewFlightHandler(service flights.FlightUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("/flights/search", h.search)
	router.GET("/airports", h.airports)
}

func (h *FlightHandler) search(c *gin.Context) {
	adults, err := optionalInt(c.Query("adults"))
	if err != nil {
		badRequest(c, "adults must be a number")
		return
	}
	limit, err := optionalInt(c.Query("max"))
	if err != nil {
		badRequest(c, "max must be a number")
		return
	}

	offers, err := h.service.SearchOffers(c.Request.Context(), domain.FlightQuery{
		Origin:        c.Query("origin"),
		Destination:   c.Query("destination"),
		DepartureDate: c.Query("departureDate"),
		ReturnDate:    c.Query("returnDate"),
		Adults:        adults,
		Max:           limit,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "offers": offers})
}

func (h *FlightHandler) airports(c *gin.Context) {
	airports, err := h.service.Airports(c.Request.Context(), c.Query("keyword"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "airports": airports})
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
