package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	bookingRepo "wellnest/database/repository/booking"
	providerRepo "wellnest/database/repository/provider"
	"wellnest/models"
	"wellnest/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transition describes a committed status change for side effects.
type Transition struct {
	Type        models.NotificationType
	Booking     models.Booking
	RecipientID string
	// ActedBy is set for cancellations.
	ActedBy models.Role
	Reason  string
}

// Notifier writes one notification record per transition.
type Notifier interface {
	NotifyTransition(ctx context.Context, t Transition) error
}

// EventPublisher forwards domain events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, booking models.Booking) error
}

// ReminderScheduler enqueues a reminder ahead of a confirmed session.
type ReminderScheduler interface {
	ScheduleReminder(ctx context.Context, booking models.Booking, start time.Time) error
}

// CreateRequest is a customer's booking request.
type CreateRequest struct {
	ProviderID      string             `json:"providerId"`
	ServiceType     models.ServiceType `json:"serviceType"`
	Date            string             `json:"date"`
	Time            string             `json:"time"`
	DurationMinutes int                `json:"durationMinutes"`
	Notes           string             `json:"notes,omitempty"`
	Amount          *float64           `json:"amount,omitempty"`
}

// CheckResult is the answer to an advisory availability check.
type CheckResult struct {
	Available bool            `json:"available"`
	Conflicts []ConflictError `json:"conflicts"`
}

// Owner listing filters.
const (
	FilterAll       = "all"
	FilterPending   = "pending"
	FilterConfirmed = "confirmed"
	FilterCancelled = "cancelled"
	FilterRejected  = "rejected"
)

// Manager orchestrates booking creation and status transitions. It is the
// only component that mutates bookings and the only translator of store
// errors into the error taxonomy.
type Manager struct {
	Bookings  bookingRepo.BookingRepository
	Providers providerRepo.ProviderRepository
	// Validator runs the authoritative check right before insert.
	Validator *ConflictValidator
	// Advisory may read cached provider data. Nil falls back to Validator.
	Advisory  *ConflictValidator
	Notifier  Notifier
	Events    EventPublisher
	Reminders ReminderScheduler
	Retry     RetryPolicy
	Policy    SlotPolicy
	Now       func() time.Time
	NewID     func() string
	NewCode   func() string
	Logger    *zap.Logger

	// SideEffectTimeout bounds each best-effort side effect.
	SideEffectTimeout time.Duration
	sideEffects       sync.WaitGroup
}

// now is truncated to the store's millisecond precision so that timestamps
// read back compare equal to the ones written.
func (m *Manager) now() time.Time {
	t := time.Now()
	if m.Now != nil {
		t = m.Now()
	}
	return t.UTC().Truncate(time.Millisecond)
}

func (m *Manager) newID() string {
	if m.NewID != nil {
		return m.NewID()
	}
	return uuid.New().String()
}

func (m *Manager) newCode() string {
	if m.NewCode != nil {
		return m.NewCode()
	}
	code, err := utils.GenerateConfirmationCode()
	if err != nil {
		m.logger().Warn("Falling back to id derived confirmation code", zap.Error(err))
		return utils.ConfirmationCodeFromID(uuid.New().String())
	}
	return code
}

func (m *Manager) logger() *zap.Logger {
	if m.Logger == nil {
		return zap.NewNop()
	}
	return m.Logger
}

// Wait blocks until all in-flight side effects finished.
func (m *Manager) Wait() {
	m.sideEffects.Wait()
}

// Create validates req and persists a pending booking for the customer.
func (m *Manager) Create(ctx context.Context, actor models.Actor, req CreateRequest) (*models.Booking, error) {
	if actor.Role != models.RoleCustomer || actor.ID == "" {
		return nil, forbiddenError("only customers can create bookings")
	}
	if err := m.checkCreateRequest(&req); err != nil {
		return nil, err
	}

	conflicts, err := m.Validator.Validate(ctx, SlotRequest{
		ProviderID:      req.ProviderID,
		ServiceType:     req.ServiceType,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, conflictsError(conflicts)
	}

	now := m.now()
	booking := &models.Booking{
		ID:              m.newID(),
		CustomerID:      actor.ID,
		ProviderID:      req.ProviderID,
		ServiceType:     req.ServiceType,
		Date:            req.Date,
		Time:            req.Time,
		DurationMinutes: req.DurationMinutes,
		Amount:          req.Amount,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentUnpaid,
		CustomerNotes:   strings.TrimSpace(req.Notes),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = m.Retry.Do(ctx, m.logger(), "insert booking", func(ctx context.Context) error {
		return m.Bookings.Insert(ctx, booking)
	})
	if errors.Is(err, bookingRepo.ErrDuplicateID) {
		// A retried insert whose first attempt landed.
		stored, getErr := m.getBooking(ctx, booking.ID)
		if getErr == nil && stored.CustomerID == booking.CustomerID && stored.CreatedAt.Equal(booking.CreatedAt) {
			booking = stored
			err = nil
		}
	}
	if err != nil {
		return nil, translateStoreError("insert booking", err)
	}

	m.logger().Info("Booking created",
		zap.String("bookingID", booking.ID),
		zap.String("providerID", booking.ProviderID),
		zap.String("customerID", booking.CustomerID))

	created := *booking
	m.afterCommit(ctx, "booking.created", created, func(ctx context.Context) error {
		provider, err := m.Providers.GetByID(ctx, created.ProviderID)
		if err != nil {
			return fmt.Errorf("resolve provider owner: %w", err)
		}
		return m.notify(ctx, Transition{
			Type:        models.NotificationBookingRequested,
			Booking:     created,
			RecipientID: provider.OwnerID,
		})
	})
	return booking, nil
}

func (m *Manager) checkCreateRequest(req *CreateRequest) error {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)

	switch {
	case req.ProviderID == "":
		return validationError(CodeMissingField, "providerId is required")
	case req.ServiceType == "":
		return validationError(CodeMissingField, "serviceType is required")
	case req.Date == "":
		return validationError(CodeMissingField, "date is required")
	case req.Time == "":
		return validationError(CodeMissingField, "time is required")
	}
	if !req.ServiceType.Valid() {
		return validationError(CodeInvalidServiceType, fmt.Sprintf("unknown service type %q", req.ServiceType))
	}
	if _, err := time.Parse(dateLayout, req.Date); err != nil {
		return validationError(CodeMalformedTime, "date must be YYYY-MM-DD")
	}
	if clockMinutes(req.Time) < 0 || req.Time == "24:00" {
		return validationError(CodeMalformedTime, "time must be HH:MM")
	}
	req.Time = canonicalClock(req.Time)
	req.DurationMinutes = m.Policy.duration(req.DurationMinutes)
	if !validDuration(req.DurationMinutes) {
		return validationError(CodeInvalidDuration, durationMessage)
	}
	return nil
}

// Confirm moves a pending booking to confirmed on behalf of its provider owner.
func (m *Manager) Confirm(ctx context.Context, actor models.Actor, id, notes string) (*models.Booking, error) {
	if actor.Role != models.RoleOwner || actor.ID == "" {
		return nil, forbiddenError("only provider owners can confirm bookings")
	}
	booking, err := m.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending {
		return nil, concurrencyError(CodeAlreadyResolved, booking)
	}

	now := m.now()
	code := m.newCode()
	notes = strings.TrimSpace(notes)
	update := models.StatusUpdate{
		Status:           models.StatusConfirmed,
		ProviderResponse: &notes,
		ConfirmationCode: &code,
		ConfirmedAt:      &now,
		RespondedAt:      &now,
		UpdatedAt:        now,
	}
	confirmed, err := m.transition(ctx, booking, []models.BookingStatus{models.StatusPending}, update, CodeAlreadyResolved,
		func(current *models.Booking) bool {
			return current.Status == models.StatusConfirmed && current.ConfirmationCode == code
		})
	if err != nil {
		return nil, err
	}

	result := *confirmed
	m.afterCommit(ctx, "booking.confirmed", result, func(ctx context.Context) error {
		m.scheduleReminder(ctx, result)
		return m.notify(ctx, Transition{
			Type:        models.NotificationBookingConfirmed,
			Booking:     result,
			RecipientID: result.CustomerID,
			Reason:      notes,
		})
	})
	return confirmed, nil
}

// Reject moves a pending booking to rejected. The reason is mandatory.
func (m *Manager) Reject(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	if actor.Role != models.RoleOwner || actor.ID == "" {
		return nil, forbiddenError("only provider owners can reject bookings")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, validationError(CodeReasonRequired, "reason required")
	}
	booking, err := m.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.StatusPending {
		return nil, concurrencyError(CodeAlreadyResolved, booking)
	}

	now := m.now()
	update := models.StatusUpdate{
		Status:           models.StatusRejected,
		ProviderResponse: &reason,
		RespondedAt:      &now,
		UpdatedAt:        now,
	}
	rejected, err := m.transition(ctx, booking, []models.BookingStatus{models.StatusPending}, update, CodeAlreadyResolved,
		func(current *models.Booking) bool {
			return current.Status == models.StatusRejected && current.ProviderResponse == reason && sameInstant(current.RespondedAt, now)
		})
	if err != nil {
		return nil, err
	}

	result := *rejected
	m.afterCommit(ctx, "booking.rejected", result, func(ctx context.Context) error {
		return m.notify(ctx, Transition{
			Type:        models.NotificationBookingRejected,
			Booking:     result,
			RecipientID: result.CustomerID,
			Reason:      reason,
		})
	})
	return rejected, nil
}

// Cancel moves a pending or confirmed booking to cancelled. The customer who
// made it and the owner of its provider may both cancel.
func (m *Manager) Cancel(ctx context.Context, actor models.Actor, id, reason string) (*models.Booking, error) {
	if actor.ID == "" || (actor.Role != models.RoleCustomer && actor.Role != models.RoleOwner) {
		return nil, forbiddenError("unknown caller")
	}

	var (
		booking  *models.Booking
		provider *models.Provider
		err      error
	)
	if actor.Role == models.RoleOwner {
		booking, err = m.loadOwned(ctx, actor, id)
	} else {
		booking, err = m.getBooking(ctx, id)
		if err == nil && booking.CustomerID != actor.ID {
			// Do not reveal other customers' bookings.
			err = &BookingError{Kind: KindNotFound, Code: CodeBookingNotFound, Message: "booking not found"}
		}
	}
	if err != nil {
		return nil, err
	}
	if booking.Status.IsTerminal() {
		return nil, concurrencyError(CodeInvalidTransition, booking)
	}

	now := m.now()
	reason = strings.TrimSpace(reason)
	update := models.StatusUpdate{
		Status:       models.StatusCancelled,
		CancelReason: &reason,
		CancelledAt:  &now,
		UpdatedAt:    now,
	}
	cancelled, err := m.transition(ctx, booking, []models.BookingStatus{models.StatusPending, models.StatusConfirmed}, update, CodeInvalidTransition,
		func(current *models.Booking) bool {
			return current.Status == models.StatusCancelled && current.CancelReason == reason && sameInstant(current.CancelledAt, now)
		})
	if err != nil {
		return nil, err
	}

	result := *cancelled
	m.afterCommit(ctx, "booking.cancelled", result, func(ctx context.Context) error {
		recipient := result.CustomerID
		if actor.Role == models.RoleCustomer {
			if provider == nil {
				p, err := m.Providers.GetByID(ctx, result.ProviderID)
				if err != nil {
					return fmt.Errorf("resolve provider owner: %w", err)
				}
				provider = p
			}
			recipient = provider.OwnerID
		}
		return m.notify(ctx, Transition{
			Type:        models.NotificationBookingCancelled,
			Booking:     result,
			RecipientID: recipient,
			ActedBy:     actor.Role,
			Reason:      reason,
		})
	})
	return cancelled, nil
}

// transition applies update with the conditional write. A zero match is
// re-read: applied reports whether the stored row already carries this very
// update, which happens when a retried attempt follows one that landed.
func (m *Manager) transition(
	ctx context.Context,
	booking *models.Booking,
	from []models.BookingStatus,
	update models.StatusUpdate,
	lostCode string,
	applied func(current *models.Booking) bool,
) (*models.Booking, error) {
	var matched int64
	err := m.Retry.Do(ctx, m.logger(), "update booking status", func(ctx context.Context) error {
		n, err := m.Bookings.UpdateStatus(ctx, booking.ID, from, update)
		if err != nil {
			return err
		}
		matched = n
		return nil
	})
	if err != nil {
		return nil, translateStoreError("update booking status", err)
	}

	if matched == 0 {
		current, err := m.getBooking(ctx, booking.ID)
		if err != nil {
			return nil, err
		}
		if !applied(current) {
			m.logger().Info("Booking transition lost race",
				zap.String("bookingID", booking.ID),
				zap.String("target", string(update.Status)),
				zap.String("current", string(current.Status)))
			return nil, concurrencyError(lostCode, current)
		}
		return current, nil
	}

	result := *booking
	applyStatusUpdate(&result, update)
	m.logger().Info("Booking status changed",
		zap.String("bookingID", result.ID),
		zap.String("from", string(booking.Status)),
		zap.String("to", string(result.Status)))
	return &result, nil
}

func applyStatusUpdate(b *models.Booking, u models.StatusUpdate) {
	b.Status = u.Status
	b.UpdatedAt = u.UpdatedAt
	if u.ProviderResponse != nil {
		b.ProviderResponse = *u.ProviderResponse
	}
	if u.CancelReason != nil {
		b.CancelReason = *u.CancelReason
	}
	if u.ConfirmationCode != nil {
		b.ConfirmationCode = *u.ConfirmationCode
	}
	if u.ConfirmedAt != nil {
		b.ConfirmedAt = u.ConfirmedAt
	}
	if u.CancelledAt != nil {
		b.CancelledAt = u.CancelledAt
	}
	if u.RespondedAt != nil {
		b.RespondedAt = u.RespondedAt
	}
}

func sameInstant(t *time.Time, want time.Time) bool {
	return t != nil && t.Equal(want)
}

func (m *Manager) getBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking *models.Booking
	err := m.Retry.Do(ctx, m.logger(), "get booking", func(ctx context.Context) error {
		b, err := m.Bookings.GetByID(ctx, id)
		if err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, translateStoreError("get booking", err)
	}
	return booking, nil
}

// loadOwned reads a booking and checks that actor owns its provider. Owners
// of other providers see it as missing.
func (m *Manager) loadOwned(ctx context.Context, actor models.Actor, id string) (*models.Booking, error) {
	booking, err := m.getBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	owned, err := m.ownedProviders(ctx, actor)
	if err != nil {
		return nil, err
	}
	if _, ok := owned[booking.ProviderID]; !ok {
		return nil, &BookingError{Kind: KindNotFound, Code: CodeBookingNotFound, Message: "booking not found"}
	}
	return booking, nil
}

func (m *Manager) ownedProviders(ctx context.Context, actor models.Actor) (map[string]models.Provider, error) {
	var providers []models.Provider
	err := m.Retry.Do(ctx, m.logger(), "owned providers lookup", func(ctx context.Context) error {
		list, err := m.Providers.GetByOwner(ctx, actor.ID)
		if err != nil {
			return err
		}
		providers = list
		return nil
	})
	if err != nil {
		return nil, translateStoreError("owned providers lookup", err)
	}
	owned := make(map[string]models.Provider, len(providers))
	for _, p := range providers {
		owned[p.ID] = p
	}
	return owned, nil
}

// OwnedProviderIDs lists the providers actor owns. Owner change feeds are
// filtered against this set.
func (m *Manager) OwnedProviderIDs(ctx context.Context, actor models.Actor) ([]string, error) {
	if actor.Role != models.RoleOwner {
		return nil, forbiddenError("only provider owners have providers")
	}
	owned, err := m.ownedProviders(ctx, actor)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}
	return ids, nil
}

// ListForCustomer returns the caller's own bookings ordered by slot.
func (m *Manager) ListForCustomer(ctx context.Context, actor models.Actor) ([]models.Booking, error) {
	if actor.Role != models.RoleCustomer || actor.ID == "" {
		return nil, forbiddenError("only customers have a booking list")
	}
	var bookings []models.Booking
	err := m.Retry.Do(ctx, m.logger(), "list customer bookings", func(ctx context.Context) error {
		list, err := m.Bookings.List(ctx, bookingRepo.BookingFilter{CustomerID: actor.ID})
		if err != nil {
			return err
		}
		bookings = list
		return nil
	})
	if err != nil {
		return nil, translateStoreError("list customer bookings", err)
	}
	return bookings, nil
}

// ListForOwner returns bookings for every provider the caller owns. Pending
// bookings overlapping another active booking are flagged for arbitration.
func (m *Manager) ListForOwner(ctx context.Context, actor models.Actor, filter string) ([]models.BookingView, error) {
	if actor.Role != models.RoleOwner || actor.ID == "" {
		return nil, forbiddenError("only provider owners have an owner listing")
	}
	if filter == "" {
		filter = FilterAll
	}
	var want models.BookingStatus
	switch filter {
	case FilterAll:
	case FilterPending, FilterConfirmed, FilterCancelled, FilterRejected:
		want = models.BookingStatus(filter)
	default:
		return nil, validationError(CodeInvalidFilter, fmt.Sprintf("unknown filter %q", filter))
	}

	owned, err := m.ownedProviders(ctx, actor)
	if err != nil {
		return nil, err
	}
	views := []models.BookingView{}
	if len(owned) == 0 {
		return views, nil
	}
	ids := make([]string, 0, len(owned))
	for id := range owned {
		ids = append(ids, id)
	}

	var bookings []models.Booking
	err = m.Retry.Do(ctx, m.logger(), "list owner bookings", func(ctx context.Context) error {
		list, err := m.Bookings.List(ctx, bookingRepo.BookingFilter{ProviderIDs: ids})
		if err != nil {
			return err
		}
		bookings = list
		return nil
	})
	if err != nil {
		return nil, translateStoreError("list owner bookings", err)
	}

	contested := contestedBookings(bookings, m.Policy)
	for _, b := range bookings {
		if want != "" && b.Status != want {
			continue
		}
		views = append(views, models.BookingView{
			Booking:          b,
			ProviderName:     owned[b.ProviderID].Name,
			NeedsArbitration: contested[b.ID],
		})
	}
	return views, nil
}

// contestedBookings marks pending bookings that overlap another active
// booking of the same provider and date. Two of them can both exist when
// they were validated against the same snapshot.
func contestedBookings(bookings []models.Booking, policy SlotPolicy) map[string]bool {
	type slotKey struct{ provider, date string }
	groups := make(map[slotKey][]models.Booking)
	for _, b := range bookings {
		if b.Status.HoldsSlot() {
			k := slotKey{b.ProviderID, b.Date}
			groups[k] = append(groups[k], b)
		}
	}

	contested := make(map[string]bool)
	for _, group := range groups {
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				aStart, aEnd, aOK := slotSpan(policy, a)
				bStart, bEnd, bOK := slotSpan(policy, b)
				// An unreadable slot overlaps everything, as in validation.
				if !aOK || !bOK || (aStart < bEnd && aEnd > bStart) {
					if a.Status == models.StatusPending {
						contested[a.ID] = true
					}
					if b.Status == models.StatusPending {
						contested[b.ID] = true
					}
				}
			}
		}
	}
	return contested
}

// Check runs the advisory availability check. The result may be computed
// from cached provider data and is not a reservation.
func (m *Manager) Check(ctx context.Context, req SlotRequest) (*CheckResult, error) {
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		return nil, validationError(CodeMissingField, "providerId is required")
	}
	if req.ServiceType != "" && !req.ServiceType.Valid() {
		return nil, validationError(CodeInvalidServiceType, fmt.Sprintf("unknown service type %q", req.ServiceType))
	}
	req.BookingID = ""

	v := m.Advisory
	if v == nil {
		v = m.Validator
	}
	conflicts, err := v.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	if conflicts == nil {
		conflicts = []ConflictError{}
	}
	return &CheckResult{Available: len(conflicts) == 0, Conflicts: conflicts}, nil
}

// notify hands t to the notifier. The notifier is optional.
func (m *Manager) notify(ctx context.Context, t Transition) error {
	if m.Notifier == nil {
		return nil
	}
	return m.Notifier.NotifyTransition(ctx, t)
}

// afterCommit runs the notification and the domain event for a committed
// write in the background. Failures are logged and never reach the caller.
func (m *Manager) afterCommit(ctx context.Context, event string, booking models.Booking, notify func(ctx context.Context) error) {
	base := context.WithoutCancel(ctx)
	timeout := m.SideEffectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	m.sideEffects.Add(1)
	go func() {
		defer m.sideEffects.Done()
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		if err := notify(ctx); err != nil {
			m.logSideEffect("notification", event, booking.ID, err)
		}
		if m.Events != nil {
			if err := m.Events.Publish(ctx, event, booking); err != nil {
				m.logSideEffect("domain event", event, booking.ID, err)
			}
		}
	}()
}

func (m *Manager) scheduleReminder(ctx context.Context, booking models.Booking) {
	if m.Reminders == nil {
		return
	}
	// A failed lookup falls back to the default timezone.
	provider, _ := m.Providers.GetByID(ctx, booking.ProviderID)
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, booking.Date+" "+booking.Time, m.Policy.location(provider))
	if err != nil {
		m.logSideEffect("reminder", "booking.confirmed", booking.ID, err)
		return
	}
	if err := m.Reminders.ScheduleReminder(ctx, booking, start); err != nil {
		m.logSideEffect("reminder", "booking.confirmed", booking.ID, err)
	}
}

func (m *Manager) logSideEffect(what, event, bookingID string, err error) {
	wrapped := &BookingError{Kind: KindSideEffect, Code: "SideEffectFailed", Message: what + " failed", Err: err}
	m.logger().Warn("Booking side effect failed",
		zap.String("event", event),
		zap.String("bookingID", bookingID),
		zap.Error(wrapped))
}
