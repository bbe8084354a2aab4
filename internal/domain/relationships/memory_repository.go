package relationships

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type edgeKey struct {
	from uuid.UUID
	to   uuid.UUID
}

type memoryEdge struct {
	createdAt time.Time
	seq       uint64
}

// MemoryRepository keeps edges in process memory. It stands in for the
// database in development and tests, including the cleanup the database
// runs when a block is inserted.
type MemoryRepository struct {
	follows  map[edgeKey]memoryEdge
	blocks   map[edgeKey]*BlockRelation
	profiles map[uuid.UUID]*ProfileSummary
	seq      uint64

	// CleanupOnBlock removes follow edges in both directions when a block is
	// inserted, as the production trigger does.
	CleanupOnBlock bool

	mu sync.RWMutex
}

// NewMemoryRepository creates an empty in-memory edge store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		follows:        make(map[edgeKey]memoryEdge),
		blocks:         make(map[edgeKey]*BlockRelation),
		profiles:       make(map[uuid.UUID]*ProfileSummary),
		CleanupOnBlock: true,
	}
}

// AddProfile registers profile details shown in follow lists
func (r *MemoryRepository) AddProfile(p ProfileSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.profiles[p.ID] = &cp
}

// Counts returns the cached counters of an account
func (r *MemoryRepository) Counts(accountID uuid.UUID) FollowCounts {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[accountID]
	if !ok {
		return FollowCounts{}
	}
	return FollowCounts{Followers: p.FollowersCount, Following: p.FollowingCount}
}

func (r *MemoryRepository) QueryBlockEdges(_ context.Context, a, b uuid.UUID) (BlockEdges, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ab := r.blocks[edgeKey{a, b}]
	_, ba := r.blocks[edgeKey{b, a}]
	return BlockEdges{ABlocksB: ab, BBlocksA: ba}, nil
}

func (r *MemoryRepository) QueryFollowEdges(_ context.Context, a, b uuid.UUID) (FollowEdges, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ab := r.follows[edgeKey{a, b}]
	_, ba := r.follows[edgeKey{b, a}]
	return FollowEdges{AFollowsB: ab, BFollowsA: ba}, nil
}

func (r *MemoryRepository) InsertFollowEdge(_ context.Context, followerID, followeeID uuid.UUID) error {
	if followerID == followeeID {
		return ErrCannotTargetSelf
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{followerID, followeeID}
	if _, exists := r.follows[key]; exists {
		return ErrAlreadyFollowing
	}
	r.seq++
	r.follows[key] = memoryEdge{createdAt: time.Now(), seq: r.seq}
	return nil
}

func (r *MemoryRepository) DeleteFollowEdge(_ context.Context, followerID, followeeID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{followerID, followeeID}
	if _, exists := r.follows[key]; !exists {
		return ErrNotFollowing
	}
	delete(r.follows, key)
	return nil
}

func (r *MemoryRepository) InsertBlockEdge(_ context.Context, block *BlockRelation) error {
	if block.BlockerUserID == block.BlockedUserID {
		return ErrCannotTargetSelf
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{block.BlockerUserID, block.BlockedUserID}
	if _, exists := r.blocks[key]; exists {
		return ErrAlreadyBlocked
	}
	cp := *block
	r.blocks[key] = &cp

	if r.CleanupOnBlock {
		r.dropFollowLocked(block.BlockerUserID, block.BlockedUserID)
		r.dropFollowLocked(block.BlockedUserID, block.BlockerUserID)
	}
	return nil
}

func (r *MemoryRepository) DeleteBlockEdge(_ context.Context, blockerID, blockedID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := edgeKey{blockerID, blockedID}
	if _, exists := r.blocks[key]; !exists {
		return ErrBlockNotFound
	}
	delete(r.blocks, key)
	return nil
}

func (r *MemoryRepository) AdjustFollowerCount(_ context.Context, accountID uuid.UUID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profileLocked(accountID)
	p.FollowersCount = max(p.FollowersCount+delta, 0)
	return nil
}

func (r *MemoryRepository) AdjustFollowingCount(_ context.Context, accountID uuid.UUID, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.profileLocked(accountID)
	p.FollowingCount = max(p.FollowingCount+delta, 0)
	return nil
}

func (r *MemoryRepository) ListFollowers(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(limit, offset, func(k edgeKey) (uuid.UUID, bool) {
		return k.from, k.to == accountID
	}), nil
}

func (r *MemoryRepository) ListFollowing(_ context.Context, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(limit, offset, func(k edgeKey) (uuid.UUID, bool) {
		return k.to, k.from == accountID
	}), nil
}

func (r *MemoryRepository) ListBlocks(_ context.Context, blockerID uuid.UUID) ([]*BlockedAccount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	blocks := []*BlockedAccount{}
	for key, block := range r.blocks {
		if key.from != blockerID {
			continue
		}
		item := &BlockedAccount{BlockRelation: *block}
		// profiles created only to hold counters have no username
		if p, ok := r.profiles[key.to]; ok && p.Username != "" {
			username := p.Username
			item.Username = &username
			item.DisplayName = p.DisplayName
			item.AvatarURL = p.AvatarURL
		}
		blocks = append(blocks, item)
	}
	sort.Slice(blocks, func(i, j int) bool {
		return blocks[i].CreatedAt.After(blocks[j].CreatedAt)
	})
	return blocks, nil
}

func (r *MemoryRepository) RecountFollows(_ context.Context, accountID uuid.UUID) (FollowCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var counts FollowCounts
	for key := range r.follows {
		if key.to == accountID {
			counts.Followers++
		}
		if key.from == accountID {
			counts.Following++
		}
	}
	p := r.profileLocked(accountID)
	p.FollowersCount = counts.Followers
	p.FollowingCount = counts.Following
	return counts, nil
}

func (r *MemoryRepository) dropFollowLocked(followerID, followeeID uuid.UUID) {
	key := edgeKey{followerID, followeeID}
	if _, exists := r.follows[key]; !exists {
		return
	}
	delete(r.follows, key)
	follower := r.profileLocked(followerID)
	follower.FollowingCount = max(follower.FollowingCount-1, 0)
	followee := r.profileLocked(followeeID)
	followee.FollowersCount = max(followee.FollowersCount-1, 0)
}

func (r *MemoryRepository) profileLocked(id uuid.UUID) *ProfileSummary {
	p, ok := r.profiles[id]
	if !ok {
		p = &ProfileSummary{ID: id}
		r.profiles[id] = p
	}
	return p
}

func (r *MemoryRepository) listLocked(limit, offset int, match func(edgeKey) (uuid.UUID, bool)) []*ProfileSummary {
	type hit struct {
		id   uuid.UUID
		edge memoryEdge
	}
	var hits []hit
	for key, edge := range r.follows {
		if id, ok := match(key); ok {
			hits = append(hits, hit{id: id, edge: edge})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].edge.seq > hits[j].edge.seq })

	items := []*ProfileSummary{}
	for i := offset; i < len(hits) && len(items) < limit; i++ {
		summary := ProfileSummary{ID: hits[i].id}
		if p, ok := r.profiles[hits[i].id]; ok {
			summary = *p
		}
		summary.EdgeCreatedAt = hits[i].edge.createdAt
		items = append(items, &summary)
	}
	return items
}
