package models

import (
	"errors"
	"fmt"
	"time"
)

// NotificationType tags which payload a Notification carries.
type NotificationType string

const (
	NotificationBookingRequested NotificationType = "booking_requested"
	NotificationBookingConfirmed NotificationType = "booking_confirmed"
	NotificationBookingRejected  NotificationType = "booking_rejected"
	NotificationBookingCancelled NotificationType = "booking_cancelled"
	NotificationBookingReminder  NotificationType = "booking_reminder"
)

// SlotSummary is the human facing description of a booked slot.
type SlotSummary struct {
	Date            string `bson:"date" json:"date"`
	Time            string `bson:"time" json:"time"`
	DurationMinutes int    `bson:"durationMinutes" json:"durationMinutes"`
}

type BookingRequestedData struct {
	CustomerName string      `bson:"customerName" json:"customerName"`
	ProviderName string      `bson:"providerName" json:"providerName"`
	ServiceType  ServiceType `bson:"serviceType" json:"serviceType"`
	Slot         SlotSummary `bson:"slot" json:"slot"`
}

type BookingConfirmedData struct {
	ProviderName     string      `bson:"providerName" json:"providerName"`
	ConfirmationCode string      `bson:"confirmationCode" json:"confirmationCode"`
	Notes            string      `bson:"notes,omitempty" json:"notes,omitempty"`
	Slot             SlotSummary `bson:"slot" json:"slot"`
}

type BookingRejectedData struct {
	ProviderName string      `bson:"providerName" json:"providerName"`
	Reason       string      `bson:"reason" json:"reason"`
	Slot         SlotSummary `bson:"slot" json:"slot"`
}

type BookingCancelledData struct {
	ProviderName string      `bson:"providerName" json:"providerName"`
	CancelledBy  string      `bson:"cancelledBy" json:"cancelledBy"` // "customer" or "owner"
	Reason       string      `bson:"reason,omitempty" json:"reason,omitempty"`
	Slot         SlotSummary `bson:"slot" json:"slot"`
}

type BookingReminderData struct {
	ProviderName string      `bson:"providerName" json:"providerName"`
	Slot         SlotSummary `bson:"slot" json:"slot"`
}

// NotificationPayload holds exactly one variant, matching Notification.Type.
type NotificationPayload struct {
	Requested *BookingRequestedData `bson:"requested,omitempty" json:"requested,omitempty"`
	Confirmed *BookingConfirmedData `bson:"confirmed,omitempty" json:"confirmed,omitempty"`
	Rejected  *BookingRejectedData  `bson:"rejected,omitempty" json:"rejected,omitempty"`
	Cancelled *BookingCancelledData `bson:"cancelled,omitempty" json:"cancelled,omitempty"`
	Reminder  *BookingReminderData  `bson:"reminder,omitempty" json:"reminder,omitempty"`
}

// Notification is one append-only row consumed by the notification center.
type Notification struct {
	ID               string              `bson:"id" json:"id"`
	RecipientID      string              `bson:"recipientId" json:"recipientId"`
	Type             NotificationType    `bson:"type" json:"type"`
	Title            string              `bson:"title" json:"title"`
	Message          string              `bson:"message" json:"message"`
	RelatedBookingID string              `bson:"relatedBookingId" json:"relatedBookingId"`
	Payload          NotificationPayload `bson:"payload" json:"payload"`
	Read             bool                `bson:"read" json:"read"`
	CreatedAt        time.Time           `bson:"createdAt" json:"createdAt"`
}

var errNoPayload = errors.New("notification payload missing")

// Validate checks the row before it is persisted.
func (n *Notification) Validate() error {
	if n.RecipientID == "" {
		return errors.New("notification recipient required")
	}
	if n.RelatedBookingID == "" {
		return errors.New("notification booking id required")
	}
	if n.Title == "" || n.Message == "" {
		return errors.New("notification title and message required")
	}

	set := 0
	p := n.Payload
	for _, ok := range []bool{p.Requested != nil, p.Confirmed != nil, p.Rejected != nil, p.Cancelled != nil, p.Reminder != nil} {
		if ok {
			set++
		}
	}
	if set == 0 {
		return errNoPayload
	}
	if set > 1 {
		return fmt.Errorf("notification carries %d payloads, want 1", set)
	}

	var matches bool
	switch n.Type {
	case NotificationBookingRequested:
		matches = p.Requested != nil
	case NotificationBookingConfirmed:
		matches = p.Confirmed != nil && p.Confirmed.ConfirmationCode != ""
	case NotificationBookingRejected:
		matches = p.Rejected != nil && p.Rejected.Reason != ""
	case NotificationBookingCancelled:
		matches = p.Cancelled != nil && (p.Cancelled.CancelledBy == "customer" || p.Cancelled.CancelledBy == "owner")
	case NotificationBookingReminder:
		matches = p.Reminder != nil
	default:
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if !matches {
		return fmt.Errorf("payload does not match notification type %q", n.Type)
	}
	return nil
}
