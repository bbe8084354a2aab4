package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepository stores accounts as (:User) nodes with FOLLOWS and BLOCKS
// relationships. Counters live on the user node.
type Neo4jRepository struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jRepository creates the graph edge store
func NewNeo4jRepository(driver neo4j.DriverWithContext) *Neo4jRepository {
	return &Neo4jRepository{driver: driver}
}

// EnsureSchema creates the uniqueness constraint on User.id (idempotent)
func (r *Neo4jRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

func (r *Neo4jRepository) QueryBlockEdges(ctx context.Context, a, b uuid.UUID) (BlockEdges, error) {
	ab, ba, err := r.pairExists(ctx, "BLOCKS", a, b)
	if err != nil {
		return BlockEdges{}, err
	}
	return BlockEdges{ABlocksB: ab, BBlocksA: ba}, nil
}

func (r *Neo4jRepository) QueryFollowEdges(ctx context.Context, a, b uuid.UUID) (FollowEdges, error) {
	ab, ba, err := r.pairExists(ctx, "FOLLOWS", a, b)
	if err != nil {
		return FollowEdges{}, err
	}
	return FollowEdges{AFollowsB: ab, BFollowsA: ba}, nil
}

func (r *Neo4jRepository) InsertFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, createFollowTx(ctx, tx, followerID, followeeID)
	})
	return err
}

func (r *Neo4jRepository) DeleteFollowEdge(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, deleteFollowTx(ctx, tx, followerID, followeeID)
	})
	return err
}

// InsertFollowWithCounts creates the edge and bumps both counters in one transaction
func (r *Neo4jRepository) InsertFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := createFollowTx(ctx, tx, followerID, followeeID); err != nil {
			return nil, err
		}
		return nil, adjustPairCountersTx(ctx, tx, followerID, followeeID, 1)
	})
	return err
}

// DeleteFollowWithCounts removes the edge and decrements both counters in one transaction
func (r *Neo4jRepository) DeleteFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := deleteFollowTx(ctx, tx, followerID, followeeID); err != nil {
			return nil, err
		}
		return nil, adjustPairCountersTx(ctx, tx, followerID, followeeID, -1)
	})
	return err
}

// InsertBlockEdge creates the block and, like the relational trigger, drops
// follows in both directions together with their counters.
func (r *Neo4jRepository) InsertBlockEdge(ctx context.Context, block *BlockRelation) error {
	if block.BlockerUserID == block.BlockedUserID {
		return ErrCannotTargetSelf
	}
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		exists, err := edgeExistsTx(ctx, tx, "BLOCKS", block.BlockerUserID, block.BlockedUserID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAlreadyBlocked
		}

		query := `
			MERGE (a:User {id: $blocker})
			MERGE (b:User {id: $blocked})
			CREATE (a)-[:BLOCKS {id: $id, created_at: $createdAt}]->(b)
		`
		if _, err := tx.Run(ctx, query, map[string]any{
			"blocker":   block.BlockerUserID.String(),
			"blocked":   block.BlockedUserID.String(),
			"id":        block.ID.String(),
			"createdAt": block.CreatedAt,
		}); err != nil {
			return nil, err
		}

		return nil, dropFollowsBetween(block.BlockerUserID, block.BlockedUserID,
			func(followerID, followeeID uuid.UUID) error {
				return deleteFollowTx(ctx, tx, followerID, followeeID)
			},
			func(followerID, followeeID uuid.UUID) error {
				return adjustPairCountersTx(ctx, tx, followerID, followeeID, -1)
			},
		)
	})
	return err
}

func (r *Neo4jRepository) DeleteBlockEdge(ctx context.Context, blockerID, blockedID uuid.UUID) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (:User {id: $a})-[rel:BLOCKS]->(:User {id: $b})
			DELETE rel
			RETURN count(rel) AS deleted
		`
		n, err := singleInt(ctx, tx, query, map[string]any{"a": blockerID.String(), "b": blockedID.String()}, "deleted")
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, ErrBlockNotFound
		}
		return nil, nil
	})
	return err
}

func (r *Neo4jRepository) AdjustFollowerCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, adjustCounterTx(ctx, tx, "followers_count", accountID, delta)
	})
	return err
}

func (r *Neo4jRepository) AdjustFollowingCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	_, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, adjustCounterTx(ctx, tx, "following_count", accountID, delta)
	})
	return err
}

func (r *Neo4jRepository) ListFollowers(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	query := `
		MATCH (f:User)-[rel:FOLLOWS]->(:User {id: $id})
		RETURN f.id AS id, f.username AS username, f.display_name AS display_name,
		       f.avatar_url AS avatar_url,
		       coalesce(f.followers_count, 0) AS followers_count,
		       coalesce(f.following_count, 0) AS following_count,
		       rel.created_at AS edge_created_at
		ORDER BY rel.created_at DESC
		SKIP $offset LIMIT $limit
	`
	return r.listProfiles(ctx, query, accountID, limit, offset)
}

func (r *Neo4jRepository) ListFollowing(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	query := `
		MATCH (:User {id: $id})-[rel:FOLLOWS]->(f:User)
		RETURN f.id AS id, f.username AS username, f.display_name AS display_name,
		       f.avatar_url AS avatar_url,
		       coalesce(f.followers_count, 0) AS followers_count,
		       coalesce(f.following_count, 0) AS following_count,
		       rel.created_at AS edge_created_at
		ORDER BY rel.created_at DESC
		SKIP $offset LIMIT $limit
	`
	return r.listProfiles(ctx, query, accountID, limit, offset)
}

func (r *Neo4jRepository) ListBlocks(ctx context.Context, blockerID uuid.UUID) ([]*BlockedAccount, error) {
	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (:User {id: $id})-[rel:BLOCKS]->(b:User)
			RETURN rel.id AS id, b.id AS blocked_id, rel.created_at AS created_at,
			       b.username AS username, b.display_name AS display_name,
			       b.avatar_url AS avatar_url
			ORDER BY rel.created_at DESC
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": blockerID.String()})
		if err != nil {
			return nil, err
		}

		blocks := []*BlockedAccount{}
		for res.Next(ctx) {
			rec := res.Record()
			blockedID, err := recordUUID(rec, "blocked_id")
			if err != nil {
				return nil, err
			}
			id, err := recordUUID(rec, "id")
			if err != nil {
				id = uuid.Nil
			}
			blocks = append(blocks, &BlockedAccount{
				BlockRelation: BlockRelation{
					ID:            id,
					BlockerUserID: blockerID,
					BlockedUserID: blockedID,
					CreatedAt:     recordTime(rec, "created_at"),
				},
				Username:    recordStringPtr(rec, "username"),
				DisplayName: recordStringPtr(rec, "display_name"),
				AvatarURL:   recordStringPtr(rec, "avatar_url"),
			})
		}
		return blocks, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*BlockedAccount), nil
}

func (r *Neo4jRepository) RecountFollows(ctx context.Context, accountID uuid.UUID) (FollowCounts, error) {
	result, err := r.write(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MERGE (u:User {id: $id})
			SET u.followers_count = COUNT { (:User)-[:FOLLOWS]->(u) },
			    u.following_count = COUNT { (u)-[:FOLLOWS]->(:User) }
			RETURN u.followers_count AS followers, u.following_count AS following
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": accountID.String()})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return FollowCounts{
			Followers: recordInt(rec, "followers"),
			Following: recordInt(rec, "following"),
		}, nil
	})
	if err != nil {
		return FollowCounts{}, err
	}
	return result.(FollowCounts), nil
}

func (r *Neo4jRepository) pairExists(ctx context.Context, relType string, a, b uuid.UUID) (bool, bool, error) {
	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		ab, err := edgeExistsTx(ctx, tx, relType, a, b)
		if err != nil {
			return nil, err
		}
		ba, err := edgeExistsTx(ctx, tx, relType, b, a)
		if err != nil {
			return nil, err
		}
		return [2]bool{ab, ba}, nil
	})
	if err != nil {
		return false, false, err
	}
	pair := result.([2]bool)
	return pair[0], pair[1], nil
}

func (r *Neo4jRepository) listProfiles(ctx context.Context, query string, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	result, err := r.read(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"id":     accountID.String(),
			"limit":  int64(limit),
			"offset": int64(offset),
		})
		if err != nil {
			return nil, err
		}

		items := []*ProfileSummary{}
		for res.Next(ctx) {
			rec := res.Record()
			id, err := recordUUID(rec, "id")
			if err != nil {
				return nil, err
			}
			username, _ := recordString(rec, "username")
			items = append(items, &ProfileSummary{
				ID:             id,
				Username:       username,
				DisplayName:    recordStringPtr(rec, "display_name"),
				AvatarURL:      recordStringPtr(rec, "avatar_url"),
				FollowersCount: recordInt(rec, "followers_count"),
				FollowingCount: recordInt(rec, "following_count"),
				EdgeCreatedAt:  recordTime(rec, "edge_created_at"),
			})
		}
		return items, res.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*ProfileSummary), nil
}

func (r *Neo4jRepository) write(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	return session.ExecuteWrite(ctx, work)
}

func (r *Neo4jRepository) read(ctx context.Context, work neo4j.ManagedTransactionWork) (any, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)
	return session.ExecuteRead(ctx, work)
}

func edgeExistsTx(ctx context.Context, tx neo4j.ManagedTransaction, relType string, from, to uuid.UUID) (bool, error) {
	query := fmt.Sprintf(`
		RETURN EXISTS { MATCH (:User {id: $from})-[:%s]->(:User {id: $to}) } AS present
	`, relType)
	res, err := tx.Run(ctx, query, map[string]any{"from": from.String(), "to": to.String()})
	if err != nil {
		return false, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return false, err
	}
	present, _ := rec.Get("present")
	ok, _ := present.(bool)
	return ok, nil
}

func createFollowTx(ctx context.Context, tx neo4j.ManagedTransaction, followerID, followeeID uuid.UUID) error {
	if followerID == followeeID {
		return ErrCannotTargetSelf
	}
	exists, err := edgeExistsTx(ctx, tx, "FOLLOWS", followerID, followeeID)
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyFollowing
	}
	query := `
		MERGE (a:User {id: $follower})
		MERGE (b:User {id: $followee})
		CREATE (a)-[:FOLLOWS {created_at: datetime()}]->(b)
	`
	_, err = tx.Run(ctx, query, map[string]any{
		"follower": followerID.String(),
		"followee": followeeID.String(),
	})
	return err
}

// dropFollowsBetween removes the follow edges of a pair in both directions
// and decrements counters for each edge actually removed.
func dropFollowsBetween(a, b uuid.UUID, deleteFollow, decrement func(followerID, followeeID uuid.UUID) error) error {
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		err := deleteFollow(pair[0], pair[1])
		if errors.Is(err, ErrNotFollowing) {
			continue
		}
		if err != nil {
			return err
		}
		if err := decrement(pair[0], pair[1]); err != nil {
			return err
		}
	}
	return nil
}

func deleteFollowTx(ctx context.Context, tx neo4j.ManagedTransaction, followerID, followeeID uuid.UUID) error {
	query := `
		MATCH (:User {id: $follower})-[rel:FOLLOWS]->(:User {id: $followee})
		DELETE rel
		RETURN count(rel) AS deleted
	`
	n, err := singleInt(ctx, tx, query, map[string]any{
		"follower": followerID.String(),
		"followee": followeeID.String(),
	}, "deleted")
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFollowing
	}
	return nil
}

func adjustPairCountersTx(ctx context.Context, tx neo4j.ManagedTransaction, followerID, followeeID uuid.UUID, delta int) error {
	if err := adjustCounterTx(ctx, tx, "following_count", followerID, delta); err != nil {
		return err
	}
	return adjustCounterTx(ctx, tx, "followers_count", followeeID, delta)
}

func adjustCounterTx(ctx context.Context, tx neo4j.ManagedTransaction, property string, accountID uuid.UUID, delta int) error {
	if property != "followers_count" && property != "following_count" {
		return fmt.Errorf("%w: unknown counter %q", ErrInvalidOperation, property)
	}
	query := fmt.Sprintf(`
		MERGE (u:User {id: $id})
		WITH u, coalesce(u.%[1]s, 0) + $delta AS next
		SET u.%[1]s = CASE WHEN next < 0 THEN 0 ELSE next END
	`, property)
	_, err := tx.Run(ctx, query, map[string]any{"id": accountID.String(), "delta": int64(delta)})
	return err
}

func singleInt(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any, key string) (int, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return 0, err
	}
	rec, err := res.Single(ctx)
	if err != nil {
		return 0, err
	}
	return recordInt(rec, key), nil
}

func recordUUID(rec *neo4j.Record, key string) (uuid.UUID, error) {
	s, ok := recordString(rec, key)
	if !ok {
		return uuid.Nil, fmt.Errorf("neo4j record: missing %s", key)
	}
	return uuid.Parse(s)
}

func recordString(rec *neo4j.Record, key string) (string, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func recordStringPtr(rec *neo4j.Record, key string) *string {
	if s, ok := recordString(rec, key); ok {
		return &s
	}
	return nil
}

func recordInt(rec *neo4j.Record, key string) int {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	n, _ := v.(int64)
	return int(n)
}

func recordTime(rec *neo4j.Record, key string) time.Time {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return time.Time{}
	}
	t, _ := v.(time.Time)
	return t
}
