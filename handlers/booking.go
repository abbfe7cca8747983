package handlers

import (
	"errors"
	"io"
	"net/http"

	"wellnest/middleware"
	"wellnest/services/booking"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler serves the customer and owner booking endpoints.
type BookingHandler struct {
	Manager *booking.Manager
}

func NewBookingHandler(manager *booking.Manager) *BookingHandler {
	return &BookingHandler{Manager: manager}
}

type reasonBody struct {
	Reason string `json:"reason"`
}

type confirmBody struct {
	Notes string `json:"notes"`
}

// bindOptionalJSON binds an optional body. An empty body leaves dst zero;
// anything unparsable is answered with 400.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error(), "code": booking.CodeMissingField})
		return false
	}
	return true
}

// CreateBookingHandler handles POST /api/bookings.
func (h *BookingHandler) CreateBookingHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var req booking.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error(), "code": booking.CodeMissingField})
		return
	}

	created, err := h.Manager.Create(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}
	getLogger(c).Info("Booking request accepted", zap.String("bookingID", created.ID))
	c.JSON(http.StatusCreated, created)
}

// ListCustomerBookingsHandler handles GET /api/bookings.
func (h *BookingHandler) ListCustomerBookingsHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	list, err := h.Manager.ListForCustomer(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

// CheckAvailabilityHandler handles POST /api/bookings/check.
func (h *BookingHandler) CheckAvailabilityHandler(c *gin.Context) {
	var req booking.SlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error(), "code": booking.CodeMissingField})
		return
	}

	result, err := h.Manager.Check(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// CancelBookingHandler handles POST /api/bookings/:id/cancel and
// POST /api/owner/bookings/:id/cancel. The caller's role decides the rules.
func (h *BookingHandler) CancelBookingHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body reasonBody
	// The reason is optional for cancellations.
	if !bindOptionalJSON(c, &body) {
		return
	}

	updated, err := h.Manager.Cancel(c.Request.Context(), actor, c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// ListOwnerBookingsHandler handles GET /api/owner/bookings?filter=.
func (h *BookingHandler) ListOwnerBookingsHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	views, err := h.Manager.ListForOwner(c.Request.Context(), actor, c.Query("filter"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": views})
}

// ConfirmBookingHandler handles POST /api/owner/bookings/:id/confirm.
func (h *BookingHandler) ConfirmBookingHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body confirmBody
	if !bindOptionalJSON(c, &body) {
		return
	}

	updated, err := h.Manager.Confirm(c.Request.Context(), actor, c.Param("id"), body.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// RejectBookingHandler handles POST /api/owner/bookings/:id/reject.
func (h *BookingHandler) RejectBookingHandler(c *gin.Context) {
	actor, _ := middleware.ActorFrom(c)
	var body reasonBody
	if !bindOptionalJSON(c, &body) {
		return
	}

	updated, err := h.Manager.Reject(c.Request.Context(), actor, c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
