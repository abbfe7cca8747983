package notification

import (
	"context"
	"fmt"
	"time"

	notificationRepo "wellnest/database/repository/notification"
	providerRepo "wellnest/database/repository/provider"
	userRepo "wellnest/database/repository/user"
	"wellnest/models"
	"wellnest/services/booking"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationService writes notification-center rows for booking events.
type NotificationService interface {
	NotifyTransition(ctx context.Context, t booking.Transition) error
	NotifyReminder(ctx context.Context, b models.Booking) error
}

// DefaultNotificationService is the production implementation.
type DefaultNotificationService struct {
	repo      notificationRepo.NotificationRepository
	providers providerRepo.ProviderRepository
	users     userRepo.UserDirectory
	logger    *zap.Logger
	now       func() time.Time
}

func NewDefaultNotificationService(
	repo notificationRepo.NotificationRepository,
	providers providerRepo.ProviderRepository,
	users userRepo.UserDirectory,
	logger *zap.Logger,
) (*DefaultNotificationService, error) {
	if repo == nil || providers == nil || users == nil {
		return nil, fmt.Errorf("notification service initialization error: repository, provider or user directory is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultNotificationService{
		repo:      repo,
		providers: providers,
		users:     users,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// formatSlot renders "Tuesday 3 November, 10:00".
func formatSlot(b models.Booking) string {
	day, err := time.Parse("2006-01-02", b.Date)
	if err != nil {
		return b.Date + " " + b.Time
	}
	return fmt.Sprintf("%s, %s", day.Format("Monday 2 January"), b.Time)
}

func slotSummary(b models.Booking) models.SlotSummary {
	return models.SlotSummary{Date: b.Date, Time: b.Time, DurationMinutes: b.DurationMinutes}
}

// providerName falls back to a generic label; display data never blocks a write.
func (s *DefaultNotificationService) providerName(ctx context.Context, id string) string {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil || p.Name == "" {
		if err != nil {
			s.logger.Debug("Provider name lookup failed", zap.String("providerID", id), zap.Error(err))
		}
		return "your provider"
	}
	return p.Name
}

func (s *DefaultNotificationService) customerName(ctx context.Context, id string) string {
	name, err := s.users.GetDisplayName(ctx, id)
	if err != nil || name == "" {
		if err != nil {
			s.logger.Debug("Customer name lookup failed", zap.String("customerID", id), zap.Error(err))
		}
		return "A customer"
	}
	return name
}

// NotifyTransition builds the typed row for t, validates it and appends it.
func (s *DefaultNotificationService) NotifyTransition(ctx context.Context, t booking.Transition) error {
	b := t.Booking
	providerName := s.providerName(ctx, b.ProviderID)
	when := formatSlot(b)

	n := &models.Notification{
		RecipientID:      t.RecipientID,
		Type:             t.Type,
		RelatedBookingID: b.ID,
	}
	switch t.Type {
	case models.NotificationBookingRequested:
		customerName := s.customerName(ctx, b.CustomerID)
		n.Title = "New Booking Request"
		n.Message = fmt.Sprintf("%s requested a %s session on %s.", customerName, b.ServiceType, when)
		n.Payload.Requested = &models.BookingRequestedData{
			CustomerName: customerName,
			ProviderName: providerName,
			ServiceType:  b.ServiceType,
			Slot:         slotSummary(b),
		}
	case models.NotificationBookingConfirmed:
		n.Title = "Booking Confirmed!"
		n.Message = fmt.Sprintf("Your appointment with %s on %s has been confirmed. Code %s.", providerName, when, b.ConfirmationCode)
		n.Payload.Confirmed = &models.BookingConfirmedData{
			ProviderName:     providerName,
			ConfirmationCode: b.ConfirmationCode,
			Notes:            t.Reason,
			Slot:             slotSummary(b),
		}
	case models.NotificationBookingRejected:
		n.Title = "Booking Declined"
		n.Message = fmt.Sprintf("%s could not accept your booking on %s: %s", providerName, when, t.Reason)
		n.Payload.Rejected = &models.BookingRejectedData{
			ProviderName: providerName,
			Reason:       t.Reason,
			Slot:         slotSummary(b),
		}
	case models.NotificationBookingCancelled:
		by := string(t.ActedBy)
		n.Title = "Booking Cancelled"
		if t.ActedBy == models.RoleCustomer {
			n.Message = fmt.Sprintf("%s cancelled the booking on %s.", s.customerName(ctx, b.CustomerID), when)
		} else {
			n.Message = fmt.Sprintf("%s cancelled your booking on %s.", providerName, when)
		}
		if t.Reason != "" {
			n.Message += " Reason: " + t.Reason
		}
		n.Payload.Cancelled = &models.BookingCancelledData{
			ProviderName: providerName,
			CancelledBy:  by,
			Reason:       t.Reason,
			Slot:         slotSummary(b),
		}
	default:
		return fmt.Errorf("NotifyTransition: unsupported notification type %q", t.Type)
	}
	return s.write(ctx, n)
}

// NotifyReminder tells the customer their confirmed session is coming up.
func (s *DefaultNotificationService) NotifyReminder(ctx context.Context, b models.Booking) error {
	providerName := s.providerName(ctx, b.ProviderID)
	n := &models.Notification{
		RecipientID:      b.CustomerID,
		Type:             models.NotificationBookingReminder,
		RelatedBookingID: b.ID,
		Title:            "Upcoming Session",
		Message:          fmt.Sprintf("Reminder: your session with %s is on %s.", providerName, formatSlot(b)),
		Payload: models.NotificationPayload{
			Reminder: &models.BookingReminderData{ProviderName: providerName, Slot: slotSummary(b)},
		},
	}
	return s.write(ctx, n)
}

func (s *DefaultNotificationService) write(ctx context.Context, n *models.Notification) error {
	n.ID = uuid.New().String()
	n.CreatedAt = s.now()
	if err := n.Validate(); err != nil {
		return fmt.Errorf("invalid %s notification for booking %s: %w", n.Type, n.RelatedBookingID, err)
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return fmt.Errorf("failed to store %s notification for booking %s: %w", n.Type, n.RelatedBookingID, err)
	}
	s.logger.Debug("Notification stored",
		zap.String("type", string(n.Type)),
		zap.String("recipientID", n.RecipientID),
		zap.String("bookingID", n.RelatedBookingID))
	return nil
}
