package models

import "time"

// BookingStatus is the approval state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusRejected  BookingStatus = "rejected"
	StatusCancelled BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses that hold a slot.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed}

// IsTerminal reports whether no further transition is defined from s.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled
}

// HoldsSlot reports whether a booking in status s blocks overlapping requests.
func (s BookingStatus) HoldsSlot() bool {
	return s == StatusPending || s == StatusConfirmed
}

// ServiceType is the kind of session being booked.
type ServiceType string

const (
	ServiceGym     ServiceType = "gym"
	ServiceSpa     ServiceType = "spa"
	ServiceYoga    ServiceType = "yoga"
	ServiceTrainer ServiceType = "trainer"
)

// Valid reports whether t is one of the known service types.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceGym, ServiceSpa, ServiceYoga, ServiceTrainer:
		return true
	}
	return false
}

// PaymentStatus is tracked for display only, settlement happens elsewhere.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "unpaid"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

// Booking is a customer's reservation of a provider slot.
type Booking struct {
	ID               string        `bson:"id" json:"id"`
	CustomerID       string        `bson:"customerId" json:"customerId"`
	ProviderID       string        `bson:"providerId" json:"providerId"`
	ServiceType      ServiceType   `bson:"serviceType" json:"serviceType"`
	Date             string        `bson:"date" json:"date"`                       // "YYYY-MM-DD"
	Time             string        `bson:"time" json:"time"`                       // "HH:MM", provider local time
	DurationMinutes  int           `bson:"durationMinutes" json:"durationMinutes"` // defaults to 60
	Amount           *float64      `bson:"amount,omitempty" json:"amount,omitempty"`
	Status           BookingStatus `bson:"status" json:"status"`
	PaymentStatus    PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	CustomerNotes    string        `bson:"customerNotes,omitempty" json:"customerNotes,omitempty"`
	ProviderResponse string        `bson:"providerResponse,omitempty" json:"providerResponse,omitempty"`
	CancelReason     string        `bson:"cancelReason,omitempty" json:"cancelReason,omitempty"`
	ConfirmationCode string        `bson:"confirmationCode,omitempty" json:"confirmationCode,omitempty"`
	CreatedAt        time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time     `bson:"updatedAt" json:"updatedAt"`
	ConfirmedAt      *time.Time    `bson:"confirmedAt,omitempty" json:"confirmedAt,omitempty"`
	CancelledAt      *time.Time    `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	RespondedAt      *time.Time    `bson:"respondedAt,omitempty" json:"respondedAt,omitempty"`
}

// BookingView is a booking as rendered in a console listing.
type BookingView struct {
	Booking
	ProviderName     string `json:"providerName,omitempty"`
	NeedsArbitration bool   `json:"needsArbitration,omitempty"`
}

// StatusUpdate carries the fields written together with a status transition.
type StatusUpdate struct {
	Status           BookingStatus
	ProviderResponse *string
	CancelReason     *string
	ConfirmationCode *string
	ConfirmedAt      *time.Time
	CancelledAt      *time.Time
	RespondedAt      *time.Time
	UpdatedAt        time.Time
}
