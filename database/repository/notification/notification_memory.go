package notificationRepo

import (
	"context"
	"sync"

	"wellnest/models"
)

// MemoryNotificationRepo appends rows in process. FailWith makes every
// subsequent insert fail, for exercising best-effort paths.
type MemoryNotificationRepo struct {
	mu       sync.Mutex
	rows     []models.Notification
	FailWith error
}

func NewMemoryNotificationRepo() *MemoryNotificationRepo {
	return &MemoryNotificationRepo{}
}

func (r *MemoryNotificationRepo) Insert(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWith != nil {
		return r.FailWith
	}
	r.rows = append(r.rows, *n)
	return nil
}

func (r *MemoryNotificationRepo) ListByRecipient(_ context.Context, recipientID string) ([]models.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Notification
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].RecipientID == recipientID {
			out = append(out, r.rows[i])
		}
	}
	return out, nil
}

// All returns every stored row in insertion order.
func (r *MemoryNotificationRepo) All() []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Notification, len(r.rows))
	copy(out, r.rows)
	return out
}
