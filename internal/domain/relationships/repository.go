package relationships

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the edge store the resolver reads and writes through.
// Implementations must return ErrConflict-wrapped errors for duplicate edges
// and ErrNotFound-wrapped errors when deleting a missing edge.
type Repository interface {
	QueryBlockEdges(ctx context.Context, a, b uuid.UUID) (BlockEdges, error)
	QueryFollowEdges(ctx context.Context, a, b uuid.UUID) (FollowEdges, error)

	InsertFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error
	DeleteFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error
	InsertBlockEdge(ctx context.Context, block *BlockRelation) error
	DeleteBlockEdge(ctx context.Context, blockerID, blockedID uuid.UUID) error

	AdjustFollowerCount(ctx context.Context, accountID uuid.UUID, delta int) error
	AdjustFollowingCount(ctx context.Context, accountID uuid.UUID, delta int) error

	ListFollowers(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error)
	ListFollowing(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error)
	ListBlocks(ctx context.Context, blockerID uuid.UUID) ([]*BlockedAccount, error)

	// RecountFollows rewrites the cached counters of an account from its edges
	RecountFollows(ctx context.Context, accountID uuid.UUID) (FollowCounts, error)
}

// AtomicFollowRepository is implemented by stores that can write a follow
// edge and both counters in one transaction.
type AtomicFollowRepository interface {
	InsertFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error
	DeleteFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error
}
