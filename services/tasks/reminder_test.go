package tasks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"wellnest/models"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{}, nil
}

func processAt(t *testing.T, opts []asynq.Option) time.Time {
	t.Helper()
	for _, o := range opts {
		if o.Type() == asynq.ProcessAtOpt {
			return o.Value().(time.Time)
		}
	}
	t.Fatal("no ProcessAt option")
	return time.Time{}
}

func TestScheduleReminderLeadTime(t *testing.T) {
	now := time.Date(2026, time.November, 2, 8, 0, 0, 0, time.UTC)
	start := time.Date(2026, time.November, 3, 10, 0, 0, 0, time.UTC)
	q := &recordingEnqueuer{}
	s := NewReminderScheduler(q, 2*time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleReminder(context.Background(), models.Booking{ID: "b1"}, start))
	require.Len(t, q.tasks, 1)
	assert.Equal(t, TypeBookingReminder, q.tasks[0].Type())
	assert.True(t, processAt(t, q.opts[0]).Equal(start.Add(-2*time.Hour)))

	var p ReminderPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, "b1", p.BookingID)
}

func TestScheduleReminderSoonFiresNow(t *testing.T) {
	now := time.Date(2026, time.November, 3, 9, 0, 0, 0, time.UTC)
	start := now.Add(30 * time.Minute)
	q := &recordingEnqueuer{}
	s := NewReminderScheduler(q, 2*time.Hour)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleReminder(context.Background(), models.Booking{ID: "b1"}, start))
	assert.True(t, processAt(t, q.opts[0]).Equal(now))

	require.NoError(t, s.ScheduleReminder(context.Background(), models.Booking{ID: "b2"}, now.Add(-time.Minute)))
	assert.Len(t, q.tasks, 1)
}

func TestScheduleReminderDuplicateIsIgnored(t *testing.T) {
	q := &recordingEnqueuer{err: asynq.ErrTaskIDConflict}
	s := NewReminderScheduler(q, time.Hour)

	assert.NoError(t, s.ScheduleReminder(context.Background(), models.Booking{ID: "b1"}, time.Now().Add(24*time.Hour)))
}
