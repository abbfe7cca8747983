package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	bookingRepo "wellnest/database/repository/booking"
	"wellnest/models"
	"wellnest/services/booking"

	"go.uber.org/zap"
)

// Source reads the authoritative views. *booking.Manager implements it.
type Source interface {
	ListForCustomer(ctx context.Context, actor models.Actor) ([]models.Booking, error)
	ListForOwner(ctx context.Context, actor models.Actor, filter string) ([]models.BookingView, error)
	OwnedProviderIDs(ctx context.Context, actor models.Actor) ([]string, error)
}

// Scope selects whose bookings the client follows.
type Scope struct {
	Actor models.Actor
	// Filter applies to owner listings only.
	Filter string
}

// Snapshot is the state handed to the console after every applied fetch
// or connection change.
type Snapshot struct {
	View      []models.BookingView `json:"bookings"`
	Loading   bool                 `json:"loading"`
	Connected bool                 `json:"connected"`
	Error     string               `json:"error,omitempty"`
}

var ErrClosed = errors.New("sync client closed")

// SyncClient keeps a console's booking view current. Every change event
// triggers a full re-fetch; payloads are never merged, so the view always
// converges on store truth whatever the number or order of events.
//
// Reconnection is manual: when the feed ends Connected reports false until
// Resubscribe succeeds.
type SyncClient struct {
	feed    bookingRepo.ChangeFeed
	source  Source
	logger  *zap.Logger
	timeout time.Duration

	mu          sync.Mutex
	base        context.Context
	stop        context.CancelFunc
	scope       Scope
	owned       map[string]bool
	view        []models.BookingView
	loading     bool
	connected   bool
	lastErr     error
	seq         uint64
	cancelFetch context.CancelFunc
	cancelWatch context.CancelFunc
	closed      bool

	updates chan Snapshot
}

// NewSyncClient creates an idle client; call Start to subscribe.
func NewSyncClient(feed bookingRepo.ChangeFeed, source Source, scope Scope, timeout time.Duration, logger *zap.Logger) *SyncClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncClient{
		feed:    feed,
		source:  source,
		scope:   scope,
		timeout: timeout,
		logger:  logger,
		view:    []models.BookingView{},
		updates: make(chan Snapshot, 1),
	}
}

// Start subscribes to the change feed and loads the initial view. The
// client stops when ctx ends or Close is called.
func (c *SyncClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.stop == nil {
		c.base, c.stop = context.WithCancel(ctx)
	}
	c.mu.Unlock()
	return c.subscribe()
}

// Resubscribe drops the current subscription, opens a new one and
// re-fetches. An external health check calls it after Connected turns false.
func (c *SyncClient) Resubscribe() error {
	c.mu.Lock()
	if c.closed || c.base == nil {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()
	return c.subscribe()
}

func (c *SyncClient) subscribe() error {
	c.mu.Lock()
	base, scope := c.base, c.scope
	c.mu.Unlock()

	var owned map[string]bool
	if scope.Actor.Role == models.RoleOwner {
		ctx, cancel := c.withTimeout(base)
		ids, err := c.source.OwnedProviderIDs(ctx, scope.Actor)
		cancel()
		if err != nil {
			return err
		}
		owned = make(map[string]bool, len(ids))
		for _, id := range ids {
			owned[id] = true
		}
	}

	// Customers are filtered at the source; owners filter on provider below.
	customerID := ""
	if scope.Actor.Role == models.RoleCustomer {
		customerID = scope.Actor.ID
	}
	watchCtx, cancelWatch := context.WithCancel(base)
	events, err := c.feed.Watch(watchCtx, customerID)
	if err != nil {
		cancelWatch()
		c.setConnected(false)
		return err
	}

	c.mu.Lock()
	prev := c.cancelWatch
	c.cancelWatch = cancelWatch
	c.owned = owned
	c.connected = true
	c.mu.Unlock()
	if prev != nil {
		prev()
	}

	go c.consume(watchCtx, events)
	c.Refresh()
	return nil
}

func (c *SyncClient) consume(ctx context.Context, events <-chan models.ChangeEvent) {
	for ev := range events {
		if ev.Table != models.BookingsTable || !c.inScope(ev) {
			continue
		}
		c.Refresh()
	}

	// A replaced subscription ends quietly.
	if ctx.Err() == nil {
		c.logger.Warn("Booking change feed ended", zap.String("actorID", c.actorID()))
		c.setConnected(false)
	}
}

func (c *SyncClient) inScope(ev models.ChangeEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.scope.Actor.Role {
	case models.RoleCustomer:
		return ev.Row.CustomerID == c.scope.Actor.ID
	case models.RoleOwner:
		return c.owned[ev.Row.ProviderID]
	}
	return false
}

// SetFilter changes the owner listing filter and re-fetches.
func (c *SyncClient) SetFilter(filter string) {
	c.mu.Lock()
	c.scope.Filter = filter
	c.mu.Unlock()
	c.Refresh()
}

// Refresh starts a fetch of the current scope. A newer fetch supersedes any
// in flight: its token is created first, then the older one is aborted, and
// only the newest result is applied.
func (c *SyncClient) Refresh() {
	c.mu.Lock()
	if c.closed || c.base == nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := c.withTimeout(c.base)
	prev := c.cancelFetch
	c.cancelFetch = cancel
	c.seq++
	seq := c.seq
	scope := c.scope
	c.loading = true
	c.mu.Unlock()

	if prev != nil {
		prev()
	}
	go c.fetch(ctx, cancel, seq, scope)
}

func (c *SyncClient) fetch(ctx context.Context, cancel context.CancelFunc, seq uint64, scope Scope) {
	defer cancel()
	view, err := c.load(ctx, scope)

	c.mu.Lock()
	if seq != c.seq || c.closed {
		c.mu.Unlock()
		return
	}
	c.loading = false
	switch {
	case err == nil:
		c.view = view
		c.lastErr = nil
	case booking.IsAborted(err) || errors.Is(err, context.Canceled):
		// Aborted fetches leave the view as it was.
	default:
		c.lastErr = err
		c.logger.Warn("Booking view refresh failed", zap.String("actorID", scope.Actor.ID), zap.Error(err))
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(snap)
}

func (c *SyncClient) load(ctx context.Context, scope Scope) ([]models.BookingView, error) {
	if scope.Actor.Role == models.RoleOwner {
		return c.source.ListForOwner(ctx, scope.Actor, scope.Filter)
	}
	list, err := c.source.ListForCustomer(ctx, scope.Actor)
	if err != nil {
		return nil, err
	}
	views := make([]models.BookingView, len(list))
	for i, b := range list {
		views[i] = models.BookingView{Booking: b}
	}
	return views, nil
}

func (c *SyncClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *SyncClient) setConnected(v bool) {
	c.mu.Lock()
	if c.connected == v {
		c.mu.Unlock()
		return
	}
	c.connected = v
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *SyncClient) snapshotLocked() Snapshot {
	s := Snapshot{
		View:      append([]models.BookingView(nil), c.view...),
		Loading:   c.loading,
		Connected: c.connected,
	}
	if s.View == nil {
		s.View = []models.BookingView{}
	}
	if c.lastErr != nil {
		s.Error = "could not refresh bookings, please retry"
	}
	return s
}

// publish replaces any unread snapshot with s.
func (c *SyncClient) publish(s Snapshot) {
	for {
		select {
		case c.updates <- s:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

func (c *SyncClient) actorID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope.Actor.ID
}

// Updates delivers the latest snapshot. Unread snapshots are replaced.
func (c *SyncClient) Updates() <-chan Snapshot {
	return c.updates
}

// View returns a copy of the current view.
func (c *SyncClient) View() []models.BookingView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.BookingView{}, c.view...)
}

func (c *SyncClient) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *SyncClient) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Err returns the last refresh failure, nil once a later refresh succeeded.
func (c *SyncClient) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Close aborts in-flight work and the subscription.
func (c *SyncClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.connected = false
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}
