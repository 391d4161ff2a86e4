package payment

import (
	"context"
	"time"

	"github.com/xraph/tablebill/id"
)

type Store interface {
	// AppendTransaction writes an audit record. Records are never updated.
	AppendTransaction(ctx context.Context, tx *Transaction) error
	ListTransactions(ctx context.Context, tableID string, opts ListOpts) ([]*Transaction, error)

	// SaveIntent inserts or replaces an intent.
	SaveIntent(ctx context.Context, in *Intent) error
	GetIntent(ctx context.Context, intentID id.IntentID) (*Intent, error)
	DeleteIntent(ctx context.Context, intentID id.IntentID) error

	// PurgeExpiredIntents removes intents that expired before the given time
	// and returns them.
	PurgeExpiredIntents(ctx context.Context, before time.Time) ([]*Intent, error)
}
