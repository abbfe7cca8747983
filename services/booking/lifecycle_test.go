package booking

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"wellnest/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateThenListRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.mgr.Create(ctx, customer, createRequest("10:00", 45))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, created.Status)

	list, err := f.mgr.ListForCustomer(ctx, customer)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got := list[0]
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, testDate, got.Date)
	assert.Equal(t, "10:00", got.Time)
	assert.Equal(t, 45, got.DurationMinutes)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, models.PaymentUnpaid, got.PaymentStatus)
}

func TestCreateDefaultsDuration(t *testing.T) {
	f := newFixture(t)

	created, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 0))
	require.NoError(t, err)
	assert.Equal(t, 60, created.DurationMinutes)
}

func TestCreateNotifiesOwnerAndPublishes(t *testing.T) {
	f := newFixture(t)

	created, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 60))
	require.NoError(t, err)
	f.mgr.Wait()

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotificationBookingRequested, sent[0].Type)
	assert.Equal(t, "o1", sent[0].RecipientID)
	assert.Equal(t, created.ID, sent[0].Booking.ID)
	assert.Equal(t, []string{"booking.created"}, f.events.keys)
}

func TestCreateRejectsOverlap(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b-1400", "14:00", 60, models.StatusConfirmed)
	writes := f.store.Writes()

	_, err := f.mgr.Create(context.Background(), customer, createRequest("14:30", 60))
	require.Error(t, err)

	var be *BookingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindValidation, be.Kind)
	assert.Equal(t, CodeSlotConflict, be.Code)
	require.Len(t, be.Conflicts, 1)
	assert.Equal(t, "b-1400", be.Conflicts[0].BookingID)
	assert.Equal(t, writes, f.store.Writes())
}

func TestCreateBackToBackSucceeds(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b-1400", "14:00", 60, models.StatusConfirmed)

	_, err := f.mgr.Create(context.Background(), customer, createRequest("15:00", 60))
	assert.NoError(t, err)
}

func TestCreateInPastPerformsNoWrites(t *testing.T) {
	f := newFixture(t)
	req := createRequest("07:00", 60)
	req.Date = "2026-11-02"

	_, err := f.mgr.Create(context.Background(), customer, req)
	require.Error(t, err)
	assert.Equal(t, CodeNotInFuture, CodeOf(err))
	assert.Zero(t, f.store.Writes())
	f.mgr.Wait()
	assert.Empty(t, f.notifier.all())
}

func TestCreateFieldValidationSkipsStore(t *testing.T) {
	tests := []struct {
		name string
		mut  func(r *CreateRequest)
		code string
	}{
		{"missing provider", func(r *CreateRequest) { r.ProviderID = " " }, CodeMissingField},
		{"missing date", func(r *CreateRequest) { r.Date = "" }, CodeMissingField},
		{"bad date", func(r *CreateRequest) { r.Date = "03/11/2026" }, CodeMalformedTime},
		{"bad time", func(r *CreateRequest) { r.Time = "9am" }, CodeMalformedTime},
		{"unknown service", func(r *CreateRequest) { r.ServiceType = "pilates" }, CodeInvalidServiceType},
		{"negative duration", func(r *CreateRequest) { r.DurationMinutes = -30 }, CodeInvalidDuration},
		{"duration past one day", func(r *CreateRequest) { r.DurationMinutes = math.MaxInt - 100 }, CodeInvalidDuration},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := createRequest("10:00", 60)
			tc.mut(&req)

			_, err := f.mgr.Create(context.Background(), customer, req)
			assert.Equal(t, KindValidation, KindOf(err))
			assert.Equal(t, tc.code, CodeOf(err))
			assert.Zero(t, f.bookings.Calls())
			assert.Zero(t, f.providers.Reads())
		})
	}
}

func TestHugeDurationCannotSwallowTheDay(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b-1400", "14:00", 60, models.StatusConfirmed)

	_, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", math.MaxInt-100))
	assert.Equal(t, CodeInvalidDuration, CodeOf(err))

	list, err := f.mgr.ListForOwner(context.Background(), owner, FilterAll)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateStoresZeroPaddedTime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mgr.Create(ctx, customer, createRequest("10:00", 60))
	require.NoError(t, err)
	early, err := f.mgr.Create(ctx, customer, createRequest("9:00", 60))
	require.NoError(t, err)
	assert.Equal(t, "09:00", early.Time)

	list, err := f.mgr.ListForCustomer(ctx, customer)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "09:00", list[0].Time)
	assert.Equal(t, "10:00", list[1].Time)
}

func TestCreateRequiresCustomer(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Create(context.Background(), owner, createRequest("10:00", 60))
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestCreateWithUnknownProvider(t *testing.T) {
	f := newFixture(t)
	req := createRequest("10:00", 60)
	req.ProviderID = "ghost"

	_, err := f.mgr.Create(context.Background(), customer, req)
	assert.Equal(t, CodeProviderNotFound, CodeOf(err))
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestCreateRetriesTransientReads(t *testing.T) {
	f := newFixture(t)
	f.bookings.listFails = 2

	_, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 60))
	assert.NoError(t, err)
}

func TestCreateSurfacesExhaustedRetries(t *testing.T) {
	f := newFixture(t)
	f.bookings.listFails = 3

	_, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 60))
	assert.Equal(t, KindTransient, KindOf(err))
	assert.Zero(t, f.store.Writes())
	assert.ErrorIs(t, err, errStoreDown)
}

func TestCreateRetriedInsertThatLandedReturnsStoredRecord(t *testing.T) {
	f := newFixture(t)
	f.bookings.insertFails = 1
	f.bookings.insertLands = true

	created, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 60))
	require.NoError(t, err)
	assert.Equal(t, "b1", created.ID)
	assert.Equal(t, 1, f.store.Writes())
}

func TestCreateAbortedByCaller(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.mgr.Create(ctx, customer, createRequest("10:00", 60))
	assert.True(t, IsAborted(err))
	assert.Zero(t, f.store.Writes())
}

func TestNotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("notifications table unavailable")

	created, err := f.mgr.Create(context.Background(), customer, createRequest("10:00", 60))
	require.NoError(t, err)
	confirmed, err := f.mgr.Confirm(context.Background(), owner, created.ID, "")
	require.NoError(t, err)
	f.mgr.Wait()

	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Len(t, f.notifier.all(), 2)
}

func TestConfirmSetsFields(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)

	confirmed, err := f.mgr.Confirm(context.Background(), owner, "b1", "  see you there ")
	require.NoError(t, err)
	f.mgr.Wait()

	assert.Equal(t, models.StatusConfirmed, confirmed.Status)
	assert.Equal(t, "see you there", confirmed.ProviderResponse)
	assert.Equal(t, "WN-CODE01", confirmed.ConfirmationCode)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.True(t, confirmed.ConfirmedAt.Equal(testNow))

	stored, err := f.store.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, stored.Status)
	assert.Equal(t, "WN-CODE01", stored.ConfirmationCode)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, models.NotificationBookingConfirmed, sent[0].Type)
	assert.Equal(t, "c-other", sent[0].RecipientID)

	require.Len(t, f.reminders.starts, 1)
	assert.True(t, f.reminders.starts[0].Equal(time.Date(2026, time.November, 3, 10, 0, 0, 0, time.UTC)))
}

func TestConfirmTwiceIsAlreadyResolvedAndMutatesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)
	ctx := context.Background()

	_, err := f.mgr.Confirm(ctx, owner, "b1", "first")
	require.NoError(t, err)
	before, err := f.store.GetByID(ctx, "b1")
	require.NoError(t, err)
	writes := f.store.Writes()

	for i := 0; i < 2; i++ {
		_, err = f.mgr.Confirm(ctx, owner, "b1", "second")
		var be *BookingError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, KindConcurrency, be.Kind)
		assert.Equal(t, CodeAlreadyResolved, be.Code)
		require.NotNil(t, be.Current)
		assert.Equal(t, models.StatusConfirmed, be.Current.Status)
	}

	after, err := f.store.GetByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, writes, f.store.Writes())
}

func TestConcurrentConfirmResolvesExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "42", "10:00", 60, models.StatusPending)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.mgr.Confirm(context.Background(), owner, "42", "")
		}(i)
	}
	close(start)
	wg.Wait()

	var ok, resolved int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case CodeOf(err) == CodeAlreadyResolved:
			resolved++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, resolved)
}

func TestConfirmAndRejectRace(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)

	var wg sync.WaitGroup
	var confirmErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, confirmErr = f.mgr.Confirm(context.Background(), owner, "b1", "")
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = f.mgr.Reject(context.Background(), owner, "b1", "fully booked")
	}()
	wg.Wait()

	assert.True(t, (confirmErr == nil) != (rejectErr == nil), "exactly one must win: %v / %v", confirmErr, rejectErr)
	stored, err := f.store.GetByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.True(t, stored.Status.IsTerminal() || stored.Status == models.StatusConfirmed)
	assert.Equal(t, 2, f.store.Writes())
}

func TestRejectWithEmptyReasonNeverReachesStore(t *testing.T) {
	f := newFixture(t)

	for _, reason := range []string{"", "   "} {
		_, err := f.mgr.Reject(context.Background(), owner, "b1", reason)
		var be *BookingError
		require.True(t, errors.As(err, &be))
		assert.Equal(t, KindValidation, be.Kind)
		assert.Equal(t, "reason required", be.Message)
	}
	assert.Zero(t, f.bookings.Calls())
}

func TestRejectSetsResponse(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)

	rejected, err := f.mgr.Reject(context.Background(), owner, "b1", "instructor sick")
	require.NoError(t, err)
	f.mgr.Wait()

	assert.Equal(t, models.StatusRejected, rejected.Status)
	assert.Equal(t, "instructor sick", rejected.ProviderResponse)
	require.NotNil(t, rejected.RespondedAt)
	assert.Nil(t, rejected.ConfirmedAt)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "instructor sick", sent[0].Reason)

	_, err = f.mgr.Reject(context.Background(), owner, "b1", "again")
	assert.Equal(t, CodeAlreadyResolved, CodeOf(err))
}

func TestOwnerOfAnotherProviderCannotResolve(t *testing.T) {
	other := testProvider()
	other.ID, other.OwnerID = "p2", "o2"
	f := newFixture(t, testProvider(), other)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)

	_, err := f.mgr.Confirm(context.Background(), models.Actor{ID: "o2", Role: models.RoleOwner}, "b1", "")
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.mgr.Confirm(context.Background(), customer, "b1", "")
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestConfirmUnknownBooking(t *testing.T) {
	f := newFixture(t)

	_, err := f.mgr.Confirm(context.Background(), owner, "missing", "")
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, CodeBookingNotFound, CodeOf(err))
}

func TestCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.mgr.Create(ctx, customer, createRequest("10:00", 60))
	require.NoError(t, err)
	_, err = f.mgr.Confirm(ctx, owner, created.ID, "")
	require.NoError(t, err)

	cancelled, err := f.mgr.Cancel(ctx, customer, created.ID, "schedule changed")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, "schedule changed", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	other := models.Actor{ID: "c2", Role: models.RoleCustomer}
	_, err = f.mgr.Create(ctx, other, createRequest("10:00", 60))
	assert.NoError(t, err)
}

func TestCancelTerminalIsInvalidTransition(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusRejected)

	_, err := f.mgr.Cancel(context.Background(), owner, "b1", "")
	assert.Equal(t, KindConcurrency, KindOf(err))
	assert.Equal(t, CodeInvalidTransition, CodeOf(err))
}

func TestCancelNotifiesOtherParty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	byCustomer, err := f.mgr.Create(ctx, customer, createRequest("10:00", 60))
	require.NoError(t, err)
	byOwner := f.seed(t, "b-owner", "12:00", 60, models.StatusConfirmed)
	f.mgr.Wait()
	f.notifier.transitions = nil

	_, err = f.mgr.Cancel(ctx, customer, byCustomer.ID, "")
	require.NoError(t, err)
	_, err = f.mgr.Cancel(ctx, owner, byOwner.ID, "closing early")
	require.NoError(t, err)
	f.mgr.Wait()

	recipients := map[models.Role]string{}
	for _, tr := range f.notifier.all() {
		assert.Equal(t, models.NotificationBookingCancelled, tr.Type)
		recipients[tr.ActedBy] = tr.RecipientID
	}
	assert.Equal(t, "o1", recipients[models.RoleCustomer])
	assert.Equal(t, "c-other", recipients[models.RoleOwner])
}

func TestCustomerCannotCancelOthersBooking(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusPending)

	_, err := f.mgr.Cancel(context.Background(), customer, "b1", "")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestListForOwnerFiltersAndFlagsArbitration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t, "race-a", "10:00", 60, models.StatusPending)
	f.seed(t, "race-b", "10:30", 60, models.StatusPending)
	f.seed(t, "calm", "15:00", 60, models.StatusPending)
	f.seed(t, "done", "17:00", 60, models.StatusConfirmed)
	f.seed(t, "gone", "15:00", 60, models.StatusCancelled)

	pending, err := f.mgr.ListForOwner(ctx, owner, FilterPending)
	require.NoError(t, err)
	flags := map[string]bool{}
	for _, v := range pending {
		assert.Equal(t, models.StatusPending, v.Status)
		assert.Equal(t, "Lotus Studio", v.ProviderName)
		flags[v.ID] = v.NeedsArbitration
	}
	assert.Equal(t, map[string]bool{"race-a": true, "race-b": true, "calm": false}, flags)

	all, err := f.mgr.ListForOwner(ctx, owner, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	cancelled, err := f.mgr.ListForOwner(ctx, owner, FilterCancelled)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, "gone", cancelled[0].ID)

	_, err = f.mgr.ListForOwner(ctx, owner, "archived")
	assert.Equal(t, CodeInvalidFilter, CodeOf(err))
}

func TestListForOwnerWithoutProviders(t *testing.T) {
	f := newFixture(t)

	views, err := f.mgr.ListForOwner(context.Background(), models.Actor{ID: "nobody", Role: models.RoleOwner}, FilterAll)
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.NotNil(t, views)
}

func TestCheckIsAdvisory(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "b1", "10:00", 60, models.StatusConfirmed)
	writes := f.store.Writes()

	res, err := f.mgr.Check(context.Background(), SlotRequest{ProviderID: "p1", Date: testDate, Time: "10:30", DurationMinutes: 60})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, []string{CodeSlotConflict}, codes(res.Conflicts))

	res, err = f.mgr.Check(context.Background(), SlotRequest{ProviderID: "p1", Date: testDate, Time: "11:00", DurationMinutes: 60})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.NotNil(t, res.Conflicts)
	assert.Equal(t, writes, f.store.Writes())
}

func TestUnreadableStoredSlotNeedsArbitration(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "garbled", "late", 60, models.StatusConfirmed)
	f.seed(t, "waiting", "18:00", 60, models.StatusPending)

	pending, err := f.mgr.ListForOwner(context.Background(), owner, FilterPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "waiting", pending[0].ID)
	assert.True(t, pending[0].NeedsArbitration)
}
