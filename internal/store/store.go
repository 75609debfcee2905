// Package store persists per-session collections. Guest sessions live
// only here; authenticated sessions use it as the working copy that the
// remote collection service is mirrored from.
package store

import (
	"context"

	"shopsync/internal/model"
)

// Store is scoped key-value persistence for collections, keyed by
// session ID and collection kind. Load returns an empty collection when
// nothing is stored; absence is not an error.
type Store interface {
	Load(ctx context.Context, sessionID string, kind model.Kind) (*model.Collection, error)
	Save(ctx context.Context, sessionID string, kind model.Kind, col *model.Collection) error
	Delete(ctx context.Context, sessionID string, kind model.Kind) error

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error
}
