package providerRepo

import (
	"context"
	"errors"

	"wellnest/models"
)

// ErrNotFound is returned when no provider matches the lookup.
var ErrNotFound = errors.New("provider not found")

// ProviderRepository defines the provider reads the booking engine needs.
// Profiles are maintained by the listings layer; Save exists for seeding.
type ProviderRepository interface {
	// GetByID retrieves a provider by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Provider, error)
	// GetByOwner returns every provider owned by ownerID.
	GetByOwner(ctx context.Context, ownerID string) ([]models.Provider, error)
	// Save inserts or replaces a provider record.
	Save(ctx context.Context, provider *models.Provider) error
}
