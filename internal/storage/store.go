// Package storage persists saved extraction snapshots. Stores are
// append-only: a key is written once and never updated.
package storage

import (
	"context"
	"errors"

	"github.com/project-tktt/go-scraper/internal/domain"
)

var (
	// ErrExists is returned when a snapshot with the same key is already stored
	ErrExists = errors.New("snapshot already exists")
	// ErrNotFound is returned by Get for an unknown key
	ErrNotFound = errors.New("snapshot not found")
)

// Store defines the interface for snapshot backends
type Store interface {
	// Save writes s under s.Key() and returns the key
	Save(ctx context.Context, s *domain.StoredSnapshot) (string, error)
	Get(ctx context.Context, key string) (*domain.StoredSnapshot, error)
	// List returns every snapshot ordered by key
	List(ctx context.Context) ([]*domain.StoredSnapshot, error)
	// Clear removes every snapshot and reports how many were removed
	Clear(ctx context.Context) (int, error)
}
