package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bookingRepo "wellnest/database/repository/booking"
	providerRepo "wellnest/database/repository/provider"
	"wellnest/models"
)

var (
	// Monday 2 November 2026, 08:00 UTC.
	testNow = time.Date(2026, time.November, 2, 8, 0, 0, 0, time.UTC)
	// Tuesday.
	testDate = "2026-11-03"

	errStoreDown = errors.New("connection reset by peer")
)

func testProvider() models.Provider {
	return models.Provider{
		ID:          "p1",
		OwnerID:     "o1",
		Kind:        models.ProviderBusiness,
		Name:        "Lotus Studio",
		Status:      models.ProviderApproved,
		OpeningTime: "09:00",
		ClosingTime: "21:00",
	}
}

func testPolicy() SlotPolicy {
	return SlotPolicy{Horizon: 90 * 24 * time.Hour, DefaultDuration: 60, DefaultLocation: time.UTC}
}

var (
	customer = models.Actor{ID: "c1", Role: models.RoleCustomer}
	owner    = models.Actor{ID: "o1", Role: models.RoleOwner}
)

// recordingNotifier keeps every transition it was handed.
type recordingNotifier struct {
	mu          sync.Mutex
	transitions []Transition
	err         error
}

func (n *recordingNotifier) NotifyTransition(_ context.Context, t Transition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transitions = append(n.transitions, t)
	return n.err
}

func (n *recordingNotifier) all() []Transition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Transition(nil), n.transitions...)
}

type recordingEvents struct {
	mu   sync.Mutex
	keys []string
}

func (e *recordingEvents) Publish(_ context.Context, key string, _ models.Booking) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.keys = append(e.keys, key)
	return nil
}

type recordingReminders struct {
	mu     sync.Mutex
	starts []time.Time
}

func (r *recordingReminders) ScheduleReminder(_ context.Context, _ models.Booking, start time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, start)
	return nil
}

// flakyBookings wraps a repository, counting calls and failing the first
// few of selected operations.
type flakyBookings struct {
	bookingRepo.BookingRepository

	mu          sync.Mutex
	calls       int
	listFails   int
	insertFails int
	// insertLands stores the row before returning the injected failure.
	insertLands bool
}

func (f *flakyBookings) count(ctx context.Context) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return ctx.Err()
}

func (f *flakyBookings) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *flakyBookings) ListActiveForProviderDate(ctx context.Context, providerID, date string) ([]models.Booking, error) {
	if err := f.count(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	fail := f.listFails > 0
	if fail {
		f.listFails--
	}
	f.mu.Unlock()
	if fail {
		return nil, errStoreDown
	}
	return f.BookingRepository.ListActiveForProviderDate(ctx, providerID, date)
}

func (f *flakyBookings) Insert(ctx context.Context, b *models.Booking) error {
	if err := f.count(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	fail := f.insertFails > 0
	if fail {
		f.insertFails--
	}
	f.mu.Unlock()
	if fail {
		if f.insertLands {
			if err := f.BookingRepository.Insert(ctx, b); err != nil {
				return err
			}
		}
		return errStoreDown
	}
	return f.BookingRepository.Insert(ctx, b)
}

func (f *flakyBookings) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if err := f.count(ctx); err != nil {
		return nil, err
	}
	return f.BookingRepository.GetByID(ctx, id)
}

func (f *flakyBookings) List(ctx context.Context, filter bookingRepo.BookingFilter) ([]models.Booking, error) {
	if err := f.count(ctx); err != nil {
		return nil, err
	}
	return f.BookingRepository.List(ctx, filter)
}

func (f *flakyBookings) UpdateStatus(ctx context.Context, id string, from []models.BookingStatus, u models.StatusUpdate) (int64, error) {
	if err := f.count(ctx); err != nil {
		return 0, err
	}
	return f.BookingRepository.UpdateStatus(ctx, id, from, u)
}

type fixture struct {
	mgr       *Manager
	store     *bookingRepo.MemoryBookingRepo
	bookings  *flakyBookings
	providers *providerRepo.MemoryProviderRepo
	notifier  *recordingNotifier
	events    *recordingEvents
	reminders *recordingReminders
}

func newFixture(t *testing.T, providers ...models.Provider) *fixture {
	t.Helper()
	if len(providers) == 0 {
		providers = []models.Provider{testProvider()}
	}

	store := bookingRepo.NewMemoryBookingRepo()
	bookings := &flakyBookings{BookingRepository: store}
	provs := providerRepo.NewMemoryProviderRepo(providers...)
	retry := RetryPolicy{MaxAttempts: 3, Timeout: time.Second, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	now := func() time.Time { return testNow }

	var idSeq, codeSeq atomic.Int64
	f := &fixture{
		store:     store,
		bookings:  bookings,
		providers: provs,
		notifier:  &recordingNotifier{},
		events:    &recordingEvents{},
		reminders: &recordingReminders{},
	}
	f.mgr = &Manager{
		Bookings:  bookings,
		Providers: provs,
		Validator: &ConflictValidator{
			Providers: provs,
			Bookings:  bookings,
			Policy:    testPolicy(),
			Retry:     retry,
			Now:       now,
		},
		Notifier:  f.notifier,
		Events:    f.events,
		Reminders: f.reminders,
		Retry:     retry,
		Policy:    testPolicy(),
		Now:       now,
		NewID:     func() string { return fmt.Sprintf("b%d", idSeq.Add(1)) },
		NewCode:   func() string { return fmt.Sprintf("WN-CODE%02d", codeSeq.Add(1)) },
	}
	return f
}

// seed stores a booking directly, bypassing validation.
func (f *fixture) seed(t *testing.T, id, tm string, duration int, status models.BookingStatus) models.Booking {
	t.Helper()
	b := models.Booking{
		ID:              id,
		CustomerID:      "c-other",
		ProviderID:      "p1",
		ServiceType:     models.ServiceYoga,
		Date:            testDate,
		Time:            tm,
		DurationMinutes: duration,
		Status:          status,
		PaymentStatus:   models.PaymentUnpaid,
		CreatedAt:       testNow.Add(-time.Hour),
		UpdatedAt:       testNow.Add(-time.Hour),
	}
	if err := f.store.Insert(context.Background(), &b); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
	return b
}

func createRequest(tm string, duration int) CreateRequest {
	return CreateRequest{
		ProviderID:      "p1",
		ServiceType:     models.ServiceYoga,
		Date:            testDate,
		Time:            tm,
		DurationMinutes: duration,
	}
}
