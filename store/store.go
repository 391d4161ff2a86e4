package store

import (
	"context"

	"github.com/xraph/tablebill/dish"
	"github.com/xraph/tablebill/payment"
	"github.com/xraph/tablebill/split"
)

// Store is the unified storage interface for all tablebill entities.
// The entity stores share no method names, so they are embedded directly.
type Store interface {
	dish.Store
	split.Store
	payment.Store

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
