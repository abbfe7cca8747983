package models

import "time"

// ProviderKind distinguishes businesses from individual trainers.
type ProviderKind string

const (
	ProviderBusiness ProviderKind = "business"
	ProviderTrainer  ProviderKind = "trainer"
)

// ProviderApproved is the only status under which a provider can be booked.
const ProviderApproved = "approved"

// DayHours overrides the default operating hours for a weekday.
type DayHours struct {
	Weekday     time.Weekday `bson:"weekday" json:"weekday"`
	OpeningTime string       `bson:"openingTime,omitempty" json:"openingTime,omitempty"` // "HH:MM"
	ClosingTime string       `bson:"closingTime,omitempty" json:"closingTime,omitempty"` // "HH:MM"
	Closed      bool         `bson:"closed" json:"closed"`
}

// Provider is a bookable business or trainer profile. Listings and profile
// editing live elsewhere, only the fields the booking engine reads are kept.
type Provider struct {
	ID           string        `bson:"id" json:"id"`
	OwnerID      string        `bson:"ownerId" json:"ownerId"`
	Kind         ProviderKind  `bson:"kind" json:"kind"`
	Name         string        `bson:"name" json:"name"`
	Status       string        `bson:"status" json:"status"`
	ServiceTypes []ServiceType `bson:"serviceTypes,omitempty" json:"serviceTypes,omitempty"`
	OpeningTime  string        `bson:"openingTime" json:"openingTime"` // "HH:MM"
	ClosingTime  string        `bson:"closingTime" json:"closingTime"` // "HH:MM"
	WeeklyHours  []DayHours    `bson:"weeklyHours,omitempty" json:"weeklyHours,omitempty"`
	Timezone     string        `bson:"timezone,omitempty" json:"timezone,omitempty"` // IANA name
	UpdatedAt    time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// IsApproved reports whether the provider can accept bookings.
func (p *Provider) IsApproved() bool {
	return p.Status == ProviderApproved
}

// Offers reports whether the provider lists service type t. A provider with
// no explicit list accepts every type.
func (p *Provider) Offers(t ServiceType) bool {
	if len(p.ServiceTypes) == 0 {
		return true
	}
	for _, s := range p.ServiceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// HoursOn returns the opening and closing times that apply on weekday d and
// whether the provider is open at all.
func (p *Provider) HoursOn(d time.Weekday) (opening, closing string, open bool) {
	opening, closing = p.OpeningTime, p.ClosingTime
	for _, h := range p.WeeklyHours {
		if h.Weekday != d {
			continue
		}
		if h.Closed {
			return "", "", false
		}
		if h.OpeningTime != "" {
			opening = h.OpeningTime
		}
		if h.ClosingTime != "" {
			closing = h.ClosingTime
		}
	}
	return opening, closing, true
}
