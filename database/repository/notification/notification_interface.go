package notificationRepo

import (
	"context"

	"wellnest/models"
)

// NotificationRepository is the append-only notification sink.
type NotificationRepository interface {
	Insert(ctx context.Context, n *models.Notification) error
	ListByRecipient(ctx context.Context, recipientID string) ([]models.Notification, error)
}
