package bookingRepo

import (
	"context"
	"errors"

	"wellnest/models"
)

var (
	// ErrNotFound is returned when no booking has the requested id.
	ErrNotFound = errors.New("booking not found")
	// ErrDuplicateID is returned when an insert reuses an existing id.
	ErrDuplicateID = errors.New("booking id already exists")
)

// BookingFilter narrows List. Empty fields do not filter.
type BookingFilter struct {
	CustomerID  string
	ProviderIDs []string
	Statuses    []models.BookingStatus
}

// BookingRepository is pure data access over booking records. It carries no
// business rules; status guards are expressed by the caller through the
// from-set passed to UpdateStatus.
type BookingRepository interface {
	// Insert persists a new booking.
	Insert(ctx context.Context, booking *models.Booking) error
	// GetByID retrieves a booking by its id.
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// ListActiveForProviderDate returns pending and confirmed bookings for a
	// provider on a date.
	ListActiveForProviderDate(ctx context.Context, providerID, date string) ([]models.Booking, error)
	// List returns bookings matching filter ordered by date then time.
	List(ctx context.Context, filter BookingFilter) ([]models.Booking, error)
	// UpdateStatus applies update only when the stored status is in from and
	// reports how many rows matched.
	UpdateStatus(ctx context.Context, id string, from []models.BookingStatus, update models.StatusUpdate) (int64, error)
}

// ChangeFeed streams row level changes of the bookings table. A non-empty
// customerID is filtered at the source; otherwise every change is delivered.
// The channel is closed when ctx ends or the underlying stream fails.
type ChangeFeed interface {
	Watch(ctx context.Context, customerID string) (<-chan models.ChangeEvent, error)
}
