package providerRepo

import (
	"context"
	"sort"
	"sync"

	"wellnest/models"
)

// MemoryProviderRepo keeps providers in process.
type MemoryProviderRepo struct {
	mu        sync.Mutex
	providers map[string]models.Provider
	reads     int
}

func NewMemoryProviderRepo(providers ...models.Provider) *MemoryProviderRepo {
	r := &MemoryProviderRepo{providers: make(map[string]models.Provider)}
	for _, p := range providers {
		r.providers[p.ID] = p
	}
	return r
}

func (r *MemoryProviderRepo) GetByID(_ context.Context, id string) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryProviderRepo) GetByOwner(_ context.Context, ownerID string) ([]models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []models.Provider
	for _, p := range r.providers {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryProviderRepo) Save(_ context.Context, provider *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID] = *provider
	return nil
}

// Reads reports how many GetByID calls reached this repository.
func (r *MemoryProviderRepo) Reads() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}
