package bookingRepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wellnest/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoBookingRepo implements BookingRepository and ChangeFeed using MongoDB.
type MongoBookingRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *zap.Logger
}

// NewMongoBookingRepo constructs a repository over the "bookings" collection.
func NewMongoBookingRepo(db *mongo.Database, timeout time.Duration, logger *zap.Logger) *MongoBookingRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoBookingRepo{coll: db.Collection(models.BookingsTable), timeout: timeout, logger: logger}
}

func (repo *MongoBookingRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if repo.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, repo.timeout)
}

// Insert inserts a new booking document.
func (repo *MongoBookingRepo) Insert(ctx context.Context, booking *models.Booking) error {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	if _, err := repo.coll.InsertOne(ctx, booking); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateID
		}
		return fmt.Errorf("error creating booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its ID.
func (repo *MongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	var booking models.Booking
	if err := repo.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("error fetching booking %s: %w", id, err)
	}
	return &booking, nil
}

func (repo *MongoBookingRepo) ListActiveForProviderDate(ctx context.Context, providerID, date string) ([]models.Booking, error) {
	return repo.find(ctx, bson.M{
		"providerId": providerID,
		"date":       date,
		"status":     bson.M{"$in": models.ActiveStatuses},
	})
}

func (repo *MongoBookingRepo) List(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	q := bson.M{}
	if filter.CustomerID != "" {
		q["customerId"] = filter.CustomerID
	}
	if filter.ProviderIDs != nil {
		q["providerId"] = bson.M{"$in": filter.ProviderIDs}
	}
	if len(filter.Statuses) > 0 {
		q["status"] = bson.M{"$in": filter.Statuses}
	}
	return repo.find(ctx, q)
}

func (repo *MongoBookingRepo) find(ctx context.Context, filter bson.M) ([]models.Booking, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "time", Value: 1}, {Key: "createdAt", Value: 1}})
	cursor, err := repo.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error finding bookings: %w", err)
	}
	defer cursor.Close(ctx)

	bookings := []models.Booking{}
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, fmt.Errorf("error decoding bookings: %w", err)
	}
	return bookings, nil
}

// UpdateStatus performs the conditional update `id = ? AND status IN from`.
func (repo *MongoBookingRepo) UpdateStatus(ctx context.Context, id string, from []models.BookingStatus, u models.StatusUpdate) (int64, error) {
	ctx, cancel := repo.withTimeout(ctx)
	defer cancel()

	set := bson.M{"status": u.Status, "updatedAt": u.UpdatedAt}
	if u.ProviderResponse != nil {
		set["providerResponse"] = *u.ProviderResponse
	}
	if u.CancelReason != nil {
		set["cancelReason"] = *u.CancelReason
	}
	if u.ConfirmationCode != nil {
		set["confirmationCode"] = *u.ConfirmationCode
	}
	if u.ConfirmedAt != nil {
		set["confirmedAt"] = *u.ConfirmedAt
	}
	if u.CancelledAt != nil {
		set["cancelledAt"] = *u.CancelledAt
	}
	if u.RespondedAt != nil {
		set["respondedAt"] = *u.RespondedAt
	}

	filter := bson.M{"id": id, "status": bson.M{"$in": from}}
	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return 0, fmt.Errorf("error updating booking %s: %w", id, err)
	}
	return res.MatchedCount, nil
}

// Watch opens a change stream on the bookings collection.
func (repo *MongoBookingRepo) Watch(ctx context.Context, customerID string) (<-chan models.ChangeEvent, error) {
	match := bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace"}}}
	if customerID != "" {
		match["fullDocument.customerId"] = customerID
	}
	pipeline := mongo.Pipeline{{{Key: "$match", Value: match}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := repo.coll.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("error opening booking change stream: %w", err)
	}

	out := make(chan models.ChangeEvent, 16)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())

		for stream.Next(ctx) {
			var raw struct {
				OperationType string         `bson:"operationType"`
				FullDocument  models.Booking `bson:"fullDocument"`
			}
			if err := stream.Decode(&raw); err != nil {
				repo.logger.Warn("Skipping undecodable change event", zap.Error(err))
				continue
			}
			ev := models.ChangeEvent{
				Table: models.BookingsTable,
				Type:  models.ChangeUpdate,
				Row:   raw.FullDocument,
				At:    time.Now(),
			}
			if raw.OperationType == "insert" {
				ev.Type = models.ChangeInsert
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil && ctx.Err() == nil {
			repo.logger.Warn("Booking change stream ended", zap.Error(err))
		}
	}()
	return out, nil
}

// EnsureIndexes creates the indexes used by the overlap query and listings.
func (repo *MongoBookingRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("unique_id"),
		},
		{
			Keys:    bson.D{{Key: "providerId", Value: 1}, {Key: "date", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("provider_date_status_idx"),
		},
		{
			Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetName("customer_date_idx"),
		},
	}
	if _, err := repo.coll.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create booking indexes: %w", err)
	}
	return nil
}
