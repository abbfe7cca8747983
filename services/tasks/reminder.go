package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wellnest/models"

	"github.com/hibiken/asynq"
)

const TypeBookingReminder = "booking:reminder"

// ReminderPayload identifies the booking to remind about. The worker
// re-reads the booking, so nothing else is carried.
type ReminderPayload struct {
	BookingID string `json:"bookingId"`
}

func NewBookingReminderTask(bookingID string, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(ReminderPayload{BookingID: bookingID})
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeBookingReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		// One reminder per booking even if confirmation is replayed.
		asynq.TaskID("reminder:" + bookingID),
		asynq.MaxRetry(3),
	}

	return task, opts, nil
}

// Enqueuer is the subset of *asynq.Client used here.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ReminderScheduler enqueues reminders lead before a session starts.
type ReminderScheduler struct {
	client Enqueuer
	lead   time.Duration
	now    func() time.Time
}

func NewReminderScheduler(client Enqueuer, lead time.Duration) *ReminderScheduler {
	return &ReminderScheduler{client: client, lead: lead, now: time.Now}
}

// ScheduleReminder enqueues the reminder, or fires it right away when the
// session starts within the lead time.
func (s *ReminderScheduler) ScheduleReminder(ctx context.Context, b models.Booking, start time.Time) error {
	fireAt := start.Add(-s.lead)
	if now := s.now(); fireAt.Before(now) {
		if !start.After(now) {
			return nil
		}
		fireAt = now
	}
	task, opts, err := NewBookingReminderTask(b.ID, fireAt)
	if err != nil {
		return err
	}
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue reminder for booking %s: %w", b.ID, err)
	}
	return nil
}
