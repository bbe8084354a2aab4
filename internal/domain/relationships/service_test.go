package relationships

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type failingCounterRepo struct {
	*MemoryRepository
}

func (r *failingCounterRepo) AdjustFollowerCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	return errors.New("counter store down")
}

func (r *failingCounterRepo) AdjustFollowingCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	return errors.New("counter store down")
}

type atomicRepo struct {
	*MemoryRepository
	atomicCalls  int
	counterCalls int
}

func (r *atomicRepo) InsertFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	r.atomicCalls++
	if err := r.MemoryRepository.InsertFollowEdge(ctx, followerID, followeeID); err != nil {
		return err
	}
	r.MemoryRepository.AdjustFollowingCount(ctx, followerID, 1)
	return r.MemoryRepository.AdjustFollowerCount(ctx, followeeID, 1)
}

func (r *atomicRepo) DeleteFollowWithCounts(ctx context.Context, followerID, followeeID uuid.UUID) error {
	r.atomicCalls++
	if err := r.MemoryRepository.DeleteFollowEdge(ctx, followerID, followeeID); err != nil {
		return err
	}
	r.MemoryRepository.AdjustFollowingCount(ctx, followerID, -1)
	return r.MemoryRepository.AdjustFollowerCount(ctx, followeeID, -1)
}

func (r *atomicRepo) AdjustFollowerCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	r.counterCalls++
	return r.MemoryRepository.AdjustFollowerCount(ctx, accountID, delta)
}

func (r *atomicRepo) AdjustFollowingCount(ctx context.Context, accountID uuid.UUID, delta int) error {
	r.counterCalls++
	return r.MemoryRepository.AdjustFollowingCount(ctx, accountID, delta)
}

type downRepo struct {
	*MemoryRepository
}

func (r *downRepo) QueryBlockEdges(ctx context.Context, a, b uuid.UUID) (BlockEdges, error) {
	return BlockEdges{}, errors.New("connection refused")
}

func (r *downRepo) QueryFollowEdges(ctx context.Context, a, b uuid.UUID) (FollowEdges, error) {
	return FollowEdges{}, errors.New("connection refused")
}

type recordingCache struct {
	*MemoryStateCache
	invalidated int
}

func (c *recordingCache) Invalidate(ctx context.Context, a, b uuid.UUID) {
	c.invalidated++
	c.MemoryStateCache.Invalidate(ctx, a, b)
}

// pausingRepo blocks the first QueryFollowEdges after the edges were read,
// until release is closed.
type pausingRepo struct {
	*MemoryRepository
	once    sync.Once
	paused  chan struct{}
	release chan struct{}
}

func newPausingRepo() *pausingRepo {
	return &pausingRepo{
		MemoryRepository: NewMemoryRepository(),
		paused:           make(chan struct{}),
		release:          make(chan struct{}),
	}
}

func (r *pausingRepo) QueryFollowEdges(ctx context.Context, a, b uuid.UUID) (FollowEdges, error) {
	edges, err := r.MemoryRepository.QueryFollowEdges(ctx, a, b)
	first := false
	r.once.Do(func() { first = true })
	if first {
		close(r.paused)
		<-r.release
	}
	return edges, err
}

type recordingNotifier struct {
	events []*Event
	err    error
}

func (n *recordingNotifier) Notify(ctx context.Context, event *Event) error {
	n.events = append(n.events, event)
	return n.err
}

func mustResolve(t *testing.T, svc *Service, viewer, target uuid.UUID) State {
	t.Helper()
	st, err := svc.Resolve(context.Background(), viewer, target)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return *st
}

func mustAct(t *testing.T, svc *Service, viewer, target uuid.UUID, action Action) {
	t.Helper()
	if err := svc.PerformAction(context.Background(), viewer, target, action); err != nil {
		t.Fatalf("%s: %v", action, err)
	}
}

func TestResolveSelfIsNone(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	u := uuid.New()

	if got := mustResolve(t, svc, u, u); got != (State{Relationship: RelationshipNone}) {
		t.Fatalf("expected none with no permissions, got %+v", got)
	}

	e, err := svc.CheckMessageEligibility(context.Background(), u, u)
	if err != nil {
		t.Fatalf("CheckMessageEligibility: %v", err)
	}
	if e.CanDM || e.Reason != DMReasonNotFollowing {
		t.Fatalf("expected not_following, got %+v", e)
	}
}

func TestFollowScenario(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	u1, u2 := uuid.New(), uuid.New()

	if got := mustResolve(t, svc, u1, u2); got != StateFor(RelationshipNone) || !got.CanFollow {
		t.Fatalf("expected none/canFollow, got %+v", got)
	}

	mustAct(t, svc, u1, u2, ActionFollow)
	if got := mustResolve(t, svc, u1, u2); got != (State{Relationship: RelationshipFollowing, CanUnfollow: true}) {
		t.Fatalf("u1->u2: expected following, got %+v", got)
	}
	if got := mustResolve(t, svc, u2, u1); got != (State{Relationship: RelationshipFollower, CanFollow: true, CanRemoveFollower: true}) {
		t.Fatalf("u2->u1: expected follower, got %+v", got)
	}

	mustAct(t, svc, u2, u1, ActionFollow)
	for _, pair := range [][2]uuid.UUID{{u1, u2}, {u2, u1}} {
		got := mustResolve(t, svc, pair[0], pair[1])
		if got.Relationship != RelationshipMutual || !got.CanMessage {
			t.Fatalf("expected mutual with canMessage, got %+v", got)
		}
		e, err := svc.CheckMessageEligibility(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("CheckMessageEligibility: %v", err)
		}
		if !e.CanDM || e.Reason != DMReasonMutualFollow {
			t.Fatalf("expected mutual_follow eligibility, got %+v", e)
		}
	}
}

func TestResolveIsComplementary(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, a, c, ActionBlock)

	for _, target := range []uuid.UUID{b, c} {
		fwd := mustResolve(t, svc, a, target)
		back := mustResolve(t, svc, target, a)
		if back.Relationship != fwd.Relationship.Inverse() {
			t.Fatalf("resolve(a,x)=%s but resolve(x,a)=%s", fwd.Relationship, back.Relationship)
		}
	}
}

func TestBlockOverridesStaleFollows(t *testing.T) {
	repo := NewMemoryRepository()
	repo.CleanupOnBlock = false
	svc := NewService(repo, nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, b, a, ActionFollow)
	mustAct(t, svc, b, a, ActionBlock)

	if got := mustResolve(t, svc, a, b); got != (State{Relationship: RelationshipBlockedBy}) {
		t.Fatalf("expected blocked_by with no permissions, got %+v", got)
	}
	if got := mustResolve(t, svc, b, a); got != (State{Relationship: RelationshipBlocked}) {
		t.Fatalf("expected blocked with no permissions, got %+v", got)
	}

	// mutual follow edges still exist, block-first precedence applies to DMs too
	for _, pair := range [][2]uuid.UUID{{a, b}, {b, a}} {
		e, err := svc.CheckMessageEligibility(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("CheckMessageEligibility: %v", err)
		}
		st := mustResolve(t, svc, pair[0], pair[1])
		if e.CanDM != st.CanMessage || e.Reason != DMReasonBlocked {
			t.Fatalf("expected blocked eligibility matching canMessage, got %+v vs %+v", e, st)
		}
	}
}

func TestFollowAfterBlockIsForbidden(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, a, b, ActionBlock)

	if got := mustResolve(t, svc, a, b); got.Relationship != RelationshipBlocked {
		t.Fatalf("expected blocked, got %+v", got)
	}
	if err := svc.PerformAction(context.Background(), a, b, ActionFollow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("blocker follow: expected ErrForbidden, got %v", err)
	}
	if err := svc.PerformAction(context.Background(), b, a, ActionFollow); !errors.Is(err, ErrForbidden) {
		t.Fatalf("blocked follow: expected ErrForbidden, got %v", err)
	}
}

func TestFollowTwiceConflicts(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	if got := mustResolve(t, svc, a, b); got.CanFollow {
		t.Fatalf("canFollow must be false after follow, got %+v", got)
	}

	err := svc.PerformAction(context.Background(), a, b, ActionFollow)
	if !errors.Is(err, ErrConflict) || !errors.Is(err, ErrAlreadyFollowing) {
		t.Fatalf("expected ErrAlreadyFollowing, got %v", err)
	}
}

func TestActionErrors(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()

	tests := []struct {
		name   string
		viewer uuid.UUID
		target uuid.UUID
		action Action
		want   error
	}{
		{"follow self", a, a, ActionFollow, ErrInvalidOperation},
		{"block self", a, a, ActionBlock, ErrInvalidOperation},
		{"unfollow without edge", a, b, ActionUnfollow, ErrNotFound},
		{"remove non follower", a, b, ActionRemoveFollower, ErrNotFound},
		{"unblock without block", a, b, ActionUnblock, ErrNotFound},
		{"unknown action", a, b, Action(99), ErrInvalidOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := svc.PerformAction(ctx, tt.viewer, tt.target, tt.action); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	mustAct(t, svc, a, b, ActionBlock)
	if err := svc.PerformAction(ctx, a, b, ActionBlock); !errors.Is(err, ErrAlreadyBlocked) {
		t.Fatalf("expected ErrAlreadyBlocked, got %v", err)
	}
}

func TestRemoveFollowerAndUnfollowAdjustCounts(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, b, a, ActionFollow)
	if got := repo.Counts(a); got.Followers != 1 {
		t.Fatalf("expected 1 follower, got %+v", got)
	}

	mustAct(t, svc, a, b, ActionRemoveFollower)
	if got := mustResolve(t, svc, a, b); got.Relationship != RelationshipNone {
		t.Fatalf("expected none, got %+v", got)
	}
	if got := repo.Counts(a); got.Followers != 0 {
		t.Fatalf("expected 0 followers, got %+v", got)
	}
	if got := repo.Counts(b); got.Following != 0 {
		t.Fatalf("expected 0 following, got %+v", got)
	}

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, a, b, ActionUnfollow)
	if got := repo.Counts(a); got.Following != 0 {
		t.Fatalf("expected 0 following after unfollow, got %+v", got)
	}
}

func TestUnblockRestoresNothing(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, b, a, ActionFollow)
	mustAct(t, svc, a, b, ActionBlock)
	mustAct(t, svc, a, b, ActionUnblock)

	if got := mustResolve(t, svc, a, b); got != StateFor(RelationshipNone) {
		t.Fatalf("expected none after unblock, got %+v", got)
	}
}

func TestCounterFailureDoesNotFailAction(t *testing.T) {
	repo := &failingCounterRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	if got := mustResolve(t, svc, a, b); got.Relationship != RelationshipFollowing {
		t.Fatalf("edge should be written despite counter failure, got %+v", got)
	}
	mustAct(t, svc, a, b, ActionUnfollow)
}

func TestReconcileRepairsCounters(t *testing.T) {
	mem := NewMemoryRepository()
	svc := NewService(&failingCounterRepo{MemoryRepository: mem}, nil, nil)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, c, b, ActionFollow)
	if got := mem.Counts(b); got.Followers != 0 {
		t.Fatalf("expected drifted counter, got %+v", got)
	}

	counts, err := svc.ReconcileCounts(context.Background(), b)
	if err != nil {
		t.Fatalf("ReconcileCounts: %v", err)
	}
	if counts != (FollowCounts{Followers: 2, Following: 0}) {
		t.Fatalf("unexpected reconciled counts %+v", counts)
	}
	if got := mem.Counts(b); got != counts {
		t.Fatalf("counters not persisted: %+v", got)
	}
}

func TestAtomicPathUsedWhenAvailable(t *testing.T) {
	repo := &atomicRepo{MemoryRepository: NewMemoryRepository()}
	svc := NewService(repo, nil, nil)
	a, b := uuid.New(), uuid.New()

	mustAct(t, svc, a, b, ActionFollow)
	mustAct(t, svc, a, b, ActionUnfollow)
	mustAct(t, svc, b, a, ActionFollow)
	mustAct(t, svc, a, b, ActionRemoveFollower)

	if repo.atomicCalls != 4 {
		t.Fatalf("expected 4 atomic calls, got %d", repo.atomicCalls)
	}
	if repo.counterCalls != 0 {
		t.Fatalf("separate counter calls must not be issued, got %d", repo.counterCalls)
	}
}

func TestStoreFailureIsUnavailable(t *testing.T) {
	svc := NewService(&downRepo{MemoryRepository: NewMemoryRepository()}, nil, nil)
	a, b := uuid.New(), uuid.New()

	if _, err := svc.Resolve(context.Background(), a, b); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Resolve: expected ErrUnavailable, got %v", err)
	}
	if _, err := svc.CheckMessageEligibility(context.Background(), a, b); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("CheckMessageEligibility: expected ErrUnavailable, got %v", err)
	}
	if err := svc.PerformAction(context.Background(), a, b, ActionFollow); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("follow: expected ErrUnavailable, got %v", err)
	}
}

func TestActionInvalidatesCacheAndNotifies(t *testing.T) {
	cache := &recordingCache{MemoryStateCache: NewMemoryStateCache(time.Minute)}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	svc := NewService(NewMemoryRepository(), cache, notifier)
	a, b := uuid.New(), uuid.New()

	if got := mustResolve(t, svc, a, b); got.Relationship != RelationshipNone {
		t.Fatalf("expected none, got %+v", got)
	}
	if _, ok := cache.Get(context.Background(), a, b); !ok {
		t.Fatal("resolved state should be cached")
	}

	// a failing notifier must not fail the action
	mustAct(t, svc, a, b, ActionFollow)

	if cache.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", cache.invalidated)
	}
	if got := mustResolve(t, svc, a, b); got.Relationship != RelationshipFollowing {
		t.Fatalf("stale cached state returned: %+v", got)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("expected one event, got %d", len(notifier.events))
	}
	ev := notifier.events[0]
	if ev.Type != EventRelationshipChanged || ev.Action != ActionFollow || ev.ActorID != a || ev.TargetID != b {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestListFollowersNewestFirst(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	target := uuid.New()
	followers := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for _, f := range followers {
		mustAct(t, svc, f, target, ActionFollow)
	}

	items, err := svc.ListFollowers(context.Background(), target, target, 0, 0)
	if err != nil {
		t.Fatalf("ListFollowers: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 followers, got %d", len(items))
	}
	for i, item := range items {
		if want := followers[len(followers)-1-i]; item.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, item.ID)
		}
	}

	page, err := svc.ListFollowers(context.Background(), followers[0], target, 1, 1)
	if err != nil {
		t.Fatalf("ListFollowers page: %v", err)
	}
	if len(page) != 1 || page[0].ID != followers[1] {
		t.Fatalf("unexpected page %+v", page)
	}

	following, err := svc.ListFollowing(context.Background(), uuid.New(), followers[0], 500, -3)
	if err != nil {
		t.Fatalf("ListFollowing: %v", err)
	}
	if len(following) != 1 || following[0].ID != target {
		t.Fatalf("unexpected following %+v", following)
	}
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, DefaultListLimit, 0},
		{-5, -1, DefaultListLimit, 0},
		{10, 20, 10, 20},
		{1000, 0, MaxListLimit, 0},
	}
	for _, tt := range tests {
		l, o := normalizePage(tt.limit, tt.offset)
		if l != tt.wantLimit || o != tt.wantOffset {
			t.Fatalf("normalizePage(%d,%d) = (%d,%d)", tt.limit, tt.offset, l, o)
		}
	}
}

func TestListMyBlocks(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, nil)
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	displayName := "Bee"
	repo.AddProfile(ProfileSummary{ID: b, Username: "bee", DisplayName: &displayName})

	mustAct(t, svc, a, b, ActionBlock)
	mustAct(t, svc, c, a, ActionBlock)

	blocks, err := svc.ListMyBlocks(context.Background(), a)
	if err != nil {
		t.Fatalf("ListMyBlocks: %v", err)
	}
	if len(blocks) != 1 || blocks[0].BlockedUserID != b {
		t.Fatalf("expected only a's outgoing block, got %+v", blocks)
	}
	if blocks[0].Username == nil || *blocks[0].Username != "bee" {
		t.Fatalf("expected blocked profile username, got %v", blocks[0].Username)
	}
	if blocks[0].DisplayName == nil || *blocks[0].DisplayName != "Bee" {
		t.Fatalf("expected blocked profile display name, got %v", blocks[0].DisplayName)
	}

	// no profile row: fields stay empty and the response falls back
	mustAct(t, svc, a, d, ActionBlock)
	blocks, err = svc.ListMyBlocks(context.Background(), a)
	if err != nil {
		t.Fatalf("ListMyBlocks: %v", err)
	}
	var bare *BlockedAccount
	for _, block := range blocks {
		if block.BlockedUserID == d {
			bare = block
		}
	}
	if bare == nil || bare.Username != nil {
		t.Fatalf("expected block on d without profile, got %+v", bare)
	}
	if resp := BlockedUserFromEntity(bare); resp.Username != UnknownUsername || resp.UserID != d {
		t.Fatalf("unexpected response %+v", resp)
	}

	blocked, err := svc.HasBlocked(context.Background(), c, a)
	if err != nil || !blocked {
		t.Fatalf("expected c to have blocked a, got %v (%v)", blocked, err)
	}
}

func TestFollowListsHiddenAcrossBlock(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil)
	owner, blocked, fan := uuid.New(), uuid.New(), uuid.New()

	mustAct(t, svc, fan, owner, ActionFollow)
	mustAct(t, svc, owner, blocked, ActionBlock)

	for _, viewer := range []uuid.UUID{blocked, owner} {
		account := owner
		if viewer == owner {
			account = blocked
		}
		if _, err := svc.ListFollowers(ctx, viewer, account, 0, 0); !errors.Is(err, ErrForbidden) {
			t.Fatalf("followers: expected ErrForbidden, got %v", err)
		}
		if _, err := svc.ListFollowing(ctx, viewer, account, 0, 0); !errors.Is(err, ErrForbidden) {
			t.Fatalf("following: expected ErrForbidden, got %v", err)
		}
	}

	items, err := svc.ListFollowers(ctx, owner, owner, 0, 0)
	if err != nil || len(items) != 1 {
		t.Fatalf("owner sees own followers: got %d (%v)", len(items), err)
	}
	if _, err := svc.ListFollowers(ctx, fan, owner, 0, 0); err != nil {
		t.Fatalf("unrelated viewer: %v", err)
	}
}

func TestResolveInFlightDuringActionIsNotCached(t *testing.T) {
	ctx := context.Background()
	repo := newPausingRepo()
	svc := NewService(repo, NewMemoryStateCache(time.Minute), nil)
	a, b := uuid.New(), uuid.New()

	type result struct {
		state *State
		err   error
	}
	done := make(chan result, 1)
	go func() {
		st, err := svc.Resolve(ctx, a, b)
		done <- result{st, err}
	}()

	<-repo.paused
	mustAct(t, svc, a, b, ActionFollow)
	close(repo.release)

	res := <-done
	if res.err != nil {
		t.Fatalf("in-flight Resolve: %v", res.err)
	}
	if res.state.Relationship != RelationshipNone {
		t.Fatalf("in-flight Resolve read edges before the follow, got %s", res.state.Relationship)
	}

	got := mustResolve(t, svc, a, b)
	if got.Relationship != RelationshipFollowing || got.CanFollow {
		t.Fatalf("state read before the follow was cached: %+v", got)
	}
}
