// Package store defines the persistence interface for matching sessions.
package store

import (
	"context"

	"github.com/geoproapp/geopro-server/internal/category"
	"github.com/geoproapp/geopro-server/internal/decision"
	"github.com/geoproapp/geopro-server/internal/domain"
)

// Store persists sessions, their record entries, the review queue and the
// category misses collected while exporting.
type Store interface {
	Close() error

	// Sessions
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, id string) (*domain.Session, error)
	ListSessions(ctx context.Context) ([]*domain.Session, error)
	UpdateSessionStatus(ctx context.Context, id string, status domain.SessionStatus) error
	DeleteSession(ctx context.Context, id string) error

	// Records and queue. Apply makes the store usable as a decision.Store.
	Apply(ctx context.Context, sessionID string, change decision.Change) error
	LoadRecords(ctx context.Context, sessionID string) (entries []domain.RecordEntry, queue []string, err error)

	// Category misses
	SaveMisses(ctx context.Context, sessionID string, misses []category.Miss) error
	ListMisses(ctx context.Context, sessionID string) ([]category.Miss, error)
}

var _ decision.Store = Store(nil)
