package bookingRepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"wellnest/models"
)

// MemoryBookingRepo implements BookingRepository and ChangeFeed in process.
// Every committed write is published to watchers after the lock is released.
type MemoryBookingRepo struct {
	mu       sync.Mutex
	bookings map[string]models.Booking
	writes   int

	subMu    sync.Mutex
	subSeq   int
	watchers map[int]watcher
}

type watcher struct {
	customerID string
	ch         chan models.ChangeEvent
}

func NewMemoryBookingRepo() *MemoryBookingRepo {
	return &MemoryBookingRepo{
		bookings: make(map[string]models.Booking),
		watchers: make(map[int]watcher),
	}
}

func (r *MemoryBookingRepo) Insert(_ context.Context, booking *models.Booking) error {
	r.mu.Lock()
	if _, exists := r.bookings[booking.ID]; exists {
		r.mu.Unlock()
		return ErrDuplicateID
	}
	r.bookings[booking.ID] = *booking
	r.writes++
	row := *booking
	r.mu.Unlock()

	r.publish(models.ChangeInsert, row)
	return nil
}

func (r *MemoryBookingRepo) GetByID(_ context.Context, id string) (*models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (r *MemoryBookingRepo) ListActiveForProviderDate(_ context.Context, providerID, date string) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Booking{}
	for _, b := range r.bookings {
		if b.ProviderID == providerID && b.Date == date && b.Status.HoldsSlot() {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (r *MemoryBookingRepo) List(_ context.Context, filter BookingFilter) ([]models.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Booking{}
	for _, b := range r.bookings {
		if filter.CustomerID != "" && b.CustomerID != filter.CustomerID {
			continue
		}
		if filter.ProviderIDs != nil && !containsString(filter.ProviderIDs, b.ProviderID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, b.Status) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	return out, nil
}

func (r *MemoryBookingRepo) UpdateStatus(_ context.Context, id string, from []models.BookingStatus, u models.StatusUpdate) (int64, error) {
	r.mu.Lock()
	b, ok := r.bookings[id]
	if !ok || !containsStatus(from, b.Status) {
		r.mu.Unlock()
		return 0, nil
	}

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
		t := *u.ConfirmedAt
		b.ConfirmedAt = &t
	}
	if u.CancelledAt != nil {
		t := *u.CancelledAt
		b.CancelledAt = &t
	}
	if u.RespondedAt != nil {
		t := *u.RespondedAt
		b.RespondedAt = &t
	}
	r.bookings[id] = b
	r.writes++
	r.mu.Unlock()

	r.publish(models.ChangeUpdate, b)
	return 1, nil
}

// Writes reports how many inserts and updates were committed.
func (r *MemoryBookingRepo) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

// Watch subscribes to committed writes until ctx ends.
func (r *MemoryBookingRepo) Watch(ctx context.Context, customerID string) (<-chan models.ChangeEvent, error) {
	ch := make(chan models.ChangeEvent, 32)

	r.subMu.Lock()
	r.subSeq++
	id := r.subSeq
	r.watchers[id] = watcher{customerID: customerID, ch: ch}
	r.subMu.Unlock()

	go func() {
		<-ctx.Done()
		r.subMu.Lock()
		delete(r.watchers, id)
		close(ch)
		r.subMu.Unlock()
	}()
	return ch, nil
}

func (r *MemoryBookingRepo) publish(t models.ChangeType, row models.Booking) {
	ev := models.ChangeEvent{Table: models.BookingsTable, Type: t, Row: row, At: time.Now()}

	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, w := range r.watchers {
		if w.customerID != "" && w.customerID != row.CustomerID {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			// Slow watcher. Dropping is safe, any later event triggers a full refetch.
		}
	}
}

func sortBookings(b []models.Booking) {
	sort.Slice(b, func(i, j int) bool {
		if b[i].Date != b[j].Date {
			return b[i].Date < b[j].Date
		}
		if b[i].Time != b[j].Time {
			return b[i].Time < b[j].Time
		}
		return b[i].CreatedAt.Before(b[j].CreatedAt)
	})
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsStatus(list []models.BookingStatus, v models.BookingStatus) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
