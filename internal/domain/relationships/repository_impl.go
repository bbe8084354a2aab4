package relationships

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type repository struct {
	db *sqlx.DB
}

// NewRepository creates the Postgres edge store
func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

type edgePairRow struct {
	AToB bool `db:"a_to_b"`
	BToA bool `db:"b_to_a"`
}

const profileSummaryColumns = `
	p.id, p.username, p.display_name, p.avatar_url,
	p.followers_count, p.following_count`

func (r *repository) QueryBlockEdges(ctx context.Context, a, b uuid.UUID) (BlockEdges, error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM user_blocks WHERE blocker_user_id = $1 AND blocked_user_id = $2) AS a_to_b,
			EXISTS(SELECT 1 FROM user_blocks WHERE blocker_user_id = $2 AND blocked_user_id = $1) AS b_to_a
	`
	var row edgePairRow
	if err := r.db.GetContext(ctx, &row, query, a, b); err != nil {
		return BlockEdges{}, err
	}
	return BlockEdges{ABlocksB: row.AToB, BBlocksA: row.BToA}, nil
}

func (r *repository) QueryFollowEdges(ctx context.Context, a, b uuid.UUID) (FollowEdges, error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM follows WHERE follower_id = $1 AND followee_id = $2) AS a_to_b,
			EXISTS(SELECT 1 FROM follows WHERE follower_id = $2 AND followee_id = $1) AS b_to_a
	`
	var row edgePairRow
	if err := r.db.GetContext(ctx, &row, query, a, b); err != nil {
		return FollowEdges{}, err
	}
	return FollowEdges{AFollowsB: row.AToB, BFollowsA: row.BToA}, nil
}

func (r *repository) InsertFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error {
	return insertFollow(ctx, r.db, followerID, followeeID)
}

func (r *repository) DeleteFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error {
	return deleteFollow(ctx, r.db, followerID, followeeID)
}

func (r *repository) InsertBlockEdge(ctx context.Context, block *BlockRelation) error {
	query := `
		INSERT INTO user_blocks (id, blocker_user_id, blocked_user_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, block.ID, block.BlockerUserID, block.BlockedUserID, block.CreatedAt)
	return mapDBError(err)
}

func (r *repository) DeleteBlockEdge(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	query := `DELETE FROM user_blocks WHERE blocker_user_id = $1 AND blocked_user_id = $2`
	result, err := r.db.ExecContext(ctx, query, blockerID, blockedID)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(result, ErrBlockNotFound)
}

func (r *repository) AdjustFollowerCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	return adjustCounter(ctx, r.db, "followers_count", accountID, delta)
}

func (r *repository) AdjustFollowingCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	return adjustCounter(ctx, r.db, "following_count", accountID, delta)
}

// InsertFollowWithCounts writes the edge and both counters in one transaction
func (r *repository) InsertFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertFollow(ctx, tx, followerID, followeeID); err != nil {
			return err
		}
		if err := adjustCounter(ctx, tx, "following_count", followerID, 1); err != nil {
			return err
		}
		return adjustCounter(ctx, tx, "followers_count", followeeID, 1)
	})
}

// DeleteFollowWithCounts removes the edge and decrements both counters in one transaction
func (r *repository) DeleteFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	return r.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := deleteFollow(ctx, tx, followerID, followeeID); err != nil {
			return err
		}
		if err := adjustCounter(ctx, tx, "following_count", followerID, -1); err != nil {
			return err
		}
		return adjustCounter(ctx, tx, "followers_count", followeeID, -1)
	})
}

func (r *repository) ListFollowers(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	query := `
		SELECT ` + profileSummaryColumns + `, f.created_at AS edge_created_at
		FROM follows f
		JOIN profiles p ON p.id = f.follower_id
		WHERE f.followee_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`
	items := []*ProfileSummary{}
	err := r.db.SelectContext(ctx, &items, query, accountID, limit, offset)
	return items, err
}

func (r *repository) ListFollowing(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	query := `
		SELECT ` + profileSummaryColumns + `, f.created_at AS edge_created_at
		FROM follows f
		JOIN profiles p ON p.id = f.followee_id
		WHERE f.follower_id = $1
		ORDER BY f.created_at DESC
		LIMIT $2 OFFSET $3
	`
	items := []*ProfileSummary{}
	err := r.db.SelectContext(ctx, &items, query, accountID, limit, offset)
	return items, err
}

func (r *repository) ListBlocks(ctx context.Context, blockerID uuid.UUID) ([]*BlockedAccount, error) {
	query := `
		SELECT b.id, b.blocker_user_id, b.blocked_user_id, b.created_at,
		       p.username, p.display_name, p.avatar_url
		FROM user_blocks b
		LEFT JOIN profiles p ON p.id = b.blocked_user_id
		WHERE b.blocker_user_id = $1
		ORDER BY b.created_at DESC
	`
	blocks := []*BlockedAccount{}
	err := r.db.SelectContext(ctx, &blocks, query, blockerID)
	return blocks, err
}

func (r *repository) RecountFollows(ctx context.Context, accountID uuid.UUID) (FollowCounts, error) {
	query := `
		UPDATE profiles SET
			followers_count = (SELECT COUNT(*) FROM follows WHERE followee_id = $1),
			following_count = (SELECT COUNT(*) FROM follows WHERE follower_id = $1)
		WHERE id = $1
		RETURNING followers_count, following_count
	`
	var counts FollowCounts
	if err := r.db.GetContext(ctx, &counts, query, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return FollowCounts{}, ErrAccountNotFound
		}
		return FollowCounts{}, err
	}
	return counts, nil
}

func (r *repository) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func insertFollow(ctx context.Context, db sqlx.ExecerContext, followerID, followeeID uuid.UUID) error {
	query := `
		INSERT INTO follows (id, follower_id, followee_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := db.ExecContext(ctx, query, uuid.New(), followerID, followeeID)
	return mapDBError(err)
}

func deleteFollow(ctx context.Context, db sqlx.ExecerContext, followerID, followeeID uuid.UUID) error {
	query := `DELETE FROM follows WHERE follower_id = $1 AND followee_id = $2`
	result, err := db.ExecContext(ctx, query, followerID, followeeID)
	if err != nil {
		return mapDBError(err)
	}
	return requireAffected(result, ErrNotFollowing)
}

// adjustCounter never lets a counter drop below zero
func adjustCounter(ctx context.Context, db sqlx.ExecerContext, column string, accountID uuid.UUID, delta int) error {
	if column != "followers_count" && column != "following_count" {
		return fmt.Errorf("%w: unknown counter %q", ErrInvalidOperation, column)
	}
	query := `UPDATE profiles SET ` + column + ` = GREATEST(` + column + ` + $2, 0) WHERE id = $1`
	result, err := db.ExecContext(ctx, query, accountID, delta)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrAccountNotFound)
}

func requireAffected(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return missing
	}
	return nil
}

// mapDBError translates Postgres constraint violations into error classes
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case "23505":
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case "23503":
		return fmt.Errorf("%w: %w", ErrAccountNotFound, err)
	case "23514":
		return fmt.Errorf("%w: %w", ErrCannotTargetSelf, err)
	default:
		return err
	}
}
