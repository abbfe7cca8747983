package providerRepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"wellnest/models"
)

// SeedFromFile saves every provider listed in the JSON file at path and
// returns how many were written.
func SeedFromFile(ctx context.Context, repo ProviderRepository, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read provider seed: %w", err)
	}
	var providers []models.Provider
	if err := json.Unmarshal(raw, &providers); err != nil {
		return 0, fmt.Errorf("decode provider seed: %w", err)
	}
	for i := range providers {
		if providers[i].ID == "" {
			return i, fmt.Errorf("provider seed entry %d has no id", i)
		}
		if err := repo.Save(ctx, &providers[i]); err != nil {
			return i, fmt.Errorf("save provider %s: %w", providers[i].ID, err)
		}
	}
	return len(providers), nil
}
