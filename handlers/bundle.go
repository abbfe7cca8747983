package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups all endpoint handlers into one struct.
type HandlerBundle struct {
	// Customer endpoints
	CreateBookingHandler        gin.HandlerFunc
	ListCustomerBookingsHandler gin.HandlerFunc
	CheckAvailabilityHandler    gin.HandlerFunc
	CancelBookingHandler        gin.HandlerFunc

	// Owner endpoints
	ListOwnerBookingsHandler gin.HandlerFunc
	ConfirmBookingHandler    gin.HandlerFunc
	RejectBookingHandler     gin.HandlerFunc

	// Streams
	StreamBookingsHandler gin.HandlerFunc

	HealthHandler gin.HandlerFunc
}

// NewHandlerBundle wires the bundle from its handler sets.
func NewHandlerBundle(bh *BookingHandler, rh *RealtimeHandler, health gin.HandlerFunc) *HandlerBundle {
	return &HandlerBundle{
		CreateBookingHandler:        bh.CreateBookingHandler,
		ListCustomerBookingsHandler: bh.ListCustomerBookingsHandler,
		CheckAvailabilityHandler:    bh.CheckAvailabilityHandler,
		CancelBookingHandler:        bh.CancelBookingHandler,
		ListOwnerBookingsHandler:    bh.ListOwnerBookingsHandler,
		ConfirmBookingHandler:       bh.ConfirmBookingHandler,
		RejectBookingHandler:        bh.RejectBookingHandler,
		StreamBookingsHandler:       rh.StreamBookingsHandler,
		HealthHandler:               health,
	}
}
