package masterdata

import (
	"context"

	"github.com/google/uuid"
)

// CatalogChange describes a committed item edit.
type CatalogChange struct {
	ItemID uuid.UUID
	Action string
}

// ChangeListener reacts to committed catalog edits. Failures are logged and
// never undo the edit.
type ChangeListener interface {
	HandleCatalogChanged(ctx context.Context, change CatalogChange) error
}
