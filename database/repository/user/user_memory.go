package userRepo

import (
	"context"
	"sync"
)

type MemoryUserDirectory struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewMemoryUserDirectory(names map[string]string) *MemoryUserDirectory {
	d := &MemoryUserDirectory{names: make(map[string]string, len(names))}
	for id, n := range names {
		d.names[id] = n
	}
	return d
}

func (d *MemoryUserDirectory) GetDisplayName(_ context.Context, userID string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n, ok := d.names[userID]
	if !ok {
		return "", ErrNotFound
	}
	return n, nil
}

func (d *MemoryUserDirectory) Put(userID, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names[userID] = name
}
