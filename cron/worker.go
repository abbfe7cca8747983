package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"wellnest/config"
	bookingRepo "wellnest/database/repository/booking"
	"wellnest/models"
	"wellnest/services/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// ReminderNotifier writes the reminder notification.
type ReminderNotifier interface {
	NotifyReminder(ctx context.Context, b models.Booking) error
}

// RedisOpt returns the connection for the reminder queue database.
func RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}
}

// InitReminderWorker starts the async worker in background. The returned
// server must be shut down by the caller.
func InitReminderWorker(bookings bookingRepo.BookingRepository, notifier ReminderNotifier, logger *zap.Logger) (*asynq.Server, error) {
	srv := asynq.NewServer(
		RedisOpt(),
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"default": 1,
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeBookingReminder, handleReminderTask(bookings, notifier, logger))

	logger.Info("Starting reminder worker")
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start reminder worker: %w", err)
	}
	return srv, nil
}

func handleReminderTask(bookings bookingRepo.BookingRepository, notifier ReminderNotifier, logger *zap.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p tasks.ReminderPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			logger.Error("Invalid reminder payload", zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		b, err := bookings.GetByID(ctx, p.BookingID)
		if errors.Is(err, bookingRepo.ErrNotFound) {
			logger.Warn("Reminder for unknown booking", zap.String("bookingID", p.BookingID))
			return nil
		}
		if err != nil {
			return err
		}
		if b.Status != models.StatusConfirmed {
			logger.Debug("Skipping reminder, booking no longer confirmed",
				zap.String("bookingID", b.ID),
				zap.String("status", string(b.Status)))
			return nil
		}

		if err := notifier.NotifyReminder(ctx, *b); err != nil {
			logger.Warn("Failed to write reminder", zap.String("bookingID", b.ID), zap.Error(err))
			return err
		}
		logger.Info("Reminder sent", zap.String("bookingID", b.ID))
		return nil
	}
}
