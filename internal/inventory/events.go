package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PostedEvent announces a committed ledger write.
type PostedEvent struct {
	Type      TransactionType
	ActorID   uuid.UUID
	ItemIDs   []uuid.UUID
	PostedAt  time.Time
	TxCount   int
	RequestID string
}

// PostingListener receives PostedEvent after commit. Listener failures are
// logged and never undo the posting.
type PostingListener interface {
	HandlePosted(ctx context.Context, evt PostedEvent) error
}
