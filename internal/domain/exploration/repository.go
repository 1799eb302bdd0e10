package exploration

import "context"

// Repository persists exploration state. Update is a compare-and-swap on
// Version: it must fail with ErrCodeStaleGenerationConflict when the stored
// version differs from expectedVersion.
type Repository interface {
	Create(ctx context.Context, s *ExplorationState) error
	Get(ctx context.Context, id string) (*ExplorationState, error)
	Update(ctx context.Context, s *ExplorationState, expectedVersion int64) error
	List(ctx context.Context, limit, offset int) ([]Summary, int64, error)
}

// SnapshotStore archives exploration snapshots and returns the object key.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, s *ExplorationState) (string, error)
}

// EventPublisher emits domain events after a mutation has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, e Event) error
}
