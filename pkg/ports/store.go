package ports

import (
	"context"
	"time"

	"github.com/bert-systems/canvas/pkg/domain"
)

// OutboxStore persists node patches whose remote sync is pending.
// There is at most one entry per node id.
type OutboxStore interface {
	// Save inserts or replaces the entry for entry.NodeID.
	Save(ctx context.Context, entry domain.OutboxEntry) error

	// Load retrieves the entry for a node.
	// Returns domain.ErrOutboxEntryNotFound if there is none.
	Load(ctx context.Context, nodeID string) (domain.OutboxEntry, error)

	// Delete removes the entry for a node. Deleting a missing entry is not an error.
	Delete(ctx context.Context, nodeID string) error

	// List returns every entry, dead letters included, ordered by node id.
	List(ctx context.Context) ([]domain.OutboxEntry, error)

	// Due returns up to limit live entries whose NextAttempt is not after now,
	// oldest first. A limit <= 0 means no limit.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.OutboxEntry, error)
}
