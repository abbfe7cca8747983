package models

import "time"

// ChangeType is the kind of row level change reported by the change feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
)

// BookingsTable is the feed key for booking rows.
const BookingsTable = "bookings"

// ChangeEvent is a push notification that a booking row changed. Consumers
// treat it as a trigger to re-fetch, the Row snapshot is informational.
type ChangeEvent struct {
	Table string     `json:"table"`
	Type  ChangeType `json:"type"`
	Row   Booking    `json:"row"`
	At    time.Time  `json:"at"`
}
