package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"wellnest/config"
	bookingRepo "wellnest/database/repository/booking"
	providerRepo "wellnest/database/repository/provider"
	"wellnest/models"

	"go.uber.org/zap"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
	dayMinutes = 24 * 60
)

// SlotRequest identifies the slot being checked. BookingID excludes that
// booking from the overlap check when an existing record is re-validated.
type SlotRequest struct {
	ProviderID      string             `json:"providerId"`
	ServiceType     models.ServiceType `json:"serviceType,omitempty"`
	Date            string             `json:"date"`
	Time            string             `json:"time"`
	DurationMinutes int                `json:"durationMinutes"`
	BookingID       string             `json:"-"`
}

// SlotPolicy holds the booking rules that do not depend on stored data.
type SlotPolicy struct {
	Horizon         time.Duration
	DefaultDuration int
	DefaultLocation *time.Location
}

// SlotPolicyFromConfig reads the booking rules from cfg. An unknown default
// timezone is reported rather than silently replaced.
func SlotPolicyFromConfig(cfg config.Config) (SlotPolicy, error) {
	loc := time.UTC
	if cfg.DefaultTimezone != "" {
		l, err := time.LoadLocation(cfg.DefaultTimezone)
		if err != nil {
			return SlotPolicy{}, fmt.Errorf("default timezone %q: %w", cfg.DefaultTimezone, err)
		}
		loc = l
	}
	return SlotPolicy{Horizon: cfg.Horizon(), DefaultDuration: cfg.DefaultDurationMinutes, DefaultLocation: loc}, nil
}

func (p SlotPolicy) location(provider *models.Provider) *time.Location {
	if provider != nil && provider.Timezone != "" {
		if loc, err := time.LoadLocation(provider.Timezone); err == nil {
			return loc
		}
	}
	if p.DefaultLocation != nil {
		return p.DefaultLocation
	}
	return time.UTC
}

func (p SlotPolicy) duration(minutes int) int {
	if minutes == 0 && p.DefaultDuration > 0 {
		return p.DefaultDuration
	}
	return minutes
}

// EvaluateSlot checks req against a snapshot of the provider and its active
// bookings on req.Date. It performs no I/O, so the advisory check and the
// check adjacent to the insert agree whenever they see the same snapshot.
//
// A nil or unapproved provider yields ProviderNotFound alone. Otherwise every
// applicable violation is returned, hour and horizon checks first, then slot
// conflicts ordered by booking id.
func EvaluateSlot(policy SlotPolicy, provider *models.Provider, existing []models.Booking, req SlotRequest, now time.Time) []ConflictError {
	if provider == nil || !provider.IsApproved() {
		return []ConflictError{{Code: CodeProviderNotFound, Message: "provider not found"}}
	}

	loc := policy.location(provider)
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, req.Date+" "+req.Time, loc)
	if err != nil {
		return []ConflictError{{Code: CodeMalformedTime, Message: "date must be YYYY-MM-DD and time HH:MM"}}
	}
	duration := policy.duration(req.DurationMinutes)
	if !validDuration(duration) {
		return []ConflictError{{Code: CodeInvalidDuration, Message: durationMessage}}
	}

	var conflicts []ConflictError
	if req.ServiceType != "" && !provider.Offers(req.ServiceType) {
		conflicts = append(conflicts, ConflictError{
			Code:    CodeServiceNotOffered,
			Message: fmt.Sprintf("provider does not offer %s sessions", req.ServiceType),
		})
	}
	if !start.After(now) {
		conflicts = append(conflicts, ConflictError{Code: CodeNotInFuture, Message: "requested start must be in the future"})
	}
	if start.After(now.Add(policy.Horizon)) {
		conflicts = append(conflicts, ConflictError{
			Code:    CodeTooFarInAdvance,
			Message: fmt.Sprintf("bookings open at most %d days ahead", int(policy.Horizon.Hours()/24)),
		})
	}

	reqStart := clockMinutes(req.Time)
	reqEnd := reqStart + duration
	if !withinHours(provider, start.Weekday(), reqStart, reqEnd) {
		conflicts = append(conflicts, ConflictError{Code: CodeOutsideBusinessHours, Message: "requested slot is outside business hours"})
	}

	var overlaps []ConflictError
	for _, b := range existing {
		if b.ID == req.BookingID || b.ProviderID != provider.ID || b.Date != req.Date || !b.Status.HoldsSlot() {
			continue
		}
		existStart, existEnd, ok := slotSpan(policy, b)
		if !ok {
			// An unreadable stored slot is treated as occupying the request.
			overlaps = append(overlaps, slotConflict(b.ID))
			continue
		}
		if reqStart < existEnd && reqEnd > existStart {
			overlaps = append(overlaps, slotConflict(b.ID))
		}
	}
	sort.Slice(overlaps, func(i, j int) bool { return overlaps[i].BookingID < overlaps[j].BookingID })

	return append(conflicts, overlaps...)
}

func slotConflict(bookingID string) ConflictError {
	return ConflictError{Code: CodeSlotConflict, Message: "requested slot overlaps another booking", BookingID: bookingID}
}

// withinHours checks [start, end) against [opening, closing) on weekday.
func withinHours(provider *models.Provider, weekday time.Weekday, start, end int) bool {
	opening, closing, open := provider.HoursOn(weekday)
	if !open {
		return false
	}
	openAt, closeAt := clockMinutes(opening), clockMinutes(closing)
	if openAt < 0 || closeAt < 0 || closeAt <= openAt {
		return false
	}
	return start >= openAt && end <= closeAt && end <= dayMinutes
}

// slotSpan returns the stored booking's interval in minutes after midnight.
// ok is false when its time or duration cannot describe a slot within a day.
func slotSpan(policy SlotPolicy, b models.Booking) (start, end int, ok bool) {
	start = clockMinutes(b.Time)
	duration := policy.duration(b.DurationMinutes)
	if start < 0 || !validDuration(duration) {
		return 0, 0, false
	}
	return start, start + duration, true
}

const durationMessage = "duration must be between 1 and 1440 minutes"

func validDuration(minutes int) bool {
	return minutes > 0 && minutes <= dayMinutes
}

// canonicalClock rewrites a parsed time as zero-padded "HH:MM" so stored
// times sort in slot order.
func canonicalClock(hhmm string) string {
	m := clockMinutes(hhmm)
	if m < 0 {
		return hhmm
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// clockMinutes converts "HH:MM" to minutes after midnight, -1 when malformed.
func clockMinutes(hhmm string) int {
	if hhmm == "24:00" {
		return dayMinutes
	}
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// ConflictValidator loads the data EvaluateSlot needs. Reads go through the
// retry policy; when they keep failing the validation fails, it never
// reports an empty conflict list.
type ConflictValidator struct {
	Providers providerRepo.ProviderRepository
	Bookings  bookingRepo.BookingRepository
	Policy    SlotPolicy
	Retry     RetryPolicy
	Now       func() time.Time
	Logger    *zap.Logger
}

// Validate returns the conflicts for req, or an error when the snapshot
// could not be read.
func (v *ConflictValidator) Validate(ctx context.Context, req SlotRequest) ([]ConflictError, error) {
	var provider *models.Provider
	err := v.Retry.Do(ctx, v.Logger, "provider lookup", func(ctx context.Context) error {
		p, err := v.Providers.GetByID(ctx, req.ProviderID)
		if err != nil {
			return err
		}
		provider = p
		return nil
	})
	if errors.Is(err, providerRepo.ErrNotFound) {
		return EvaluateSlot(v.Policy, nil, nil, req, v.now()), nil
	}
	if err != nil {
		return nil, translateStoreError("provider lookup", err)
	}
	if !provider.IsApproved() {
		return EvaluateSlot(v.Policy, provider, nil, req, v.now()), nil
	}

	var existing []models.Booking
	err = v.Retry.Do(ctx, v.Logger, "active bookings lookup", func(ctx context.Context) error {
		list, err := v.Bookings.ListActiveForProviderDate(ctx, req.ProviderID, req.Date)
		if err != nil {
			return err
		}
		existing = list
		return nil
	})
	if err != nil {
		return nil, translateStoreError("active bookings lookup", err)
	}

	return EvaluateSlot(v.Policy, provider, existing, req, v.now()), nil
}

func (v *ConflictValidator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}
