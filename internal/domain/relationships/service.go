package relationships

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/snacc/snacc-api/internal/pkg/logger"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// Service resolves relationship state and performs relationship actions
type Service struct {
	repo     Repository
	cache    StateCache // nil disables memoization
	notifier Notifier   // nil disables events
	now      func() time.Time
}

// NewService creates new relationships service
func NewService(repo Repository, cache StateCache, notifier Notifier) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		now:      time.Now,
	}
}

// Resolve returns the relationship between viewer and target with its permissions
func (s *Service) Resolve(ctx context.Context, viewerID, targetID uuid.UUID) (*State, error) {
	if viewerID == targetID {
		st := selfState()
		return &st, nil
	}

	var gen int64
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, viewerID, targetID); ok {
			return cached, nil
		}
		gen = s.cache.Generation(ctx, viewerID, targetID)
	}

	blocks, err := s.repo.QueryBlockEdges(ctx, viewerID, targetID)
	if err != nil {
		return nil, unavailable(err)
	}

	var st State
	if rel, blocked := classifyBlocks(blocks); blocked {
		st = StateFor(rel)
	} else {
		follows, err := s.repo.QueryFollowEdges(ctx, viewerID, targetID)
		if err != nil {
			return nil, unavailable(err)
		}
		st = StateFor(classifyFollows(follows))
	}

	if s.cache != nil {
		s.cache.Set(ctx, viewerID, targetID, st, gen)
	}
	return &st, nil
}

// CheckMessageEligibility tells whether viewer may message target and why.
// Blocks are checked before follows, the same precedence Resolve uses.
func (s *Service) CheckMessageEligibility(ctx context.Context, viewerID, targetID uuid.UUID) (*DMEligibility, error) {
	if viewerID == targetID {
		return &DMEligibility{CanDM: false, Reason: DMReasonNotFollowing}, nil
	}

	blocks, err := s.repo.QueryBlockEdges(ctx, viewerID, targetID)
	if err != nil {
		return nil, unavailable(err)
	}
	if blocks.Any() {
		e := eligibilityFor(blocks, FollowEdges{})
		return &e, nil
	}

	follows, err := s.repo.QueryFollowEdges(ctx, viewerID, targetID)
	if err != nil {
		return nil, unavailable(err)
	}
	e := eligibilityFor(blocks, follows)
	return &e, nil
}

// PerformAction dispatches a mutating action from viewer towards target
func (s *Service) PerformAction(ctx context.Context, viewerID, targetID uuid.UUID, action Action) error {
	switch action {
	case ActionFollow:
		return s.Follow(ctx, viewerID, targetID)
	case ActionUnfollow:
		return s.Unfollow(ctx, viewerID, targetID)
	case ActionRemoveFollower:
		return s.RemoveFollower(ctx, viewerID, targetID)
	case ActionBlock:
		return s.BlockUser(ctx, viewerID, targetID)
	case ActionUnblock:
		return s.UnblockUser(ctx, viewerID, targetID)
	default:
		return fmt.Errorf("%w: unknown action %s", ErrInvalidOperation, action)
	}
}

// Follow creates viewer -> target
func (s *Service) Follow(ctx context.Context, viewerID, targetID uuid.UUID) error {
	if viewerID == targetID {
		return ErrCannotTargetSelf
	}

	follows, err := s.repo.QueryFollowEdges(ctx, viewerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if follows.AFollowsB {
		return ErrAlreadyFollowing
	}

	blocks, err := s.repo.QueryBlockEdges(ctx, viewerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if blocks.Any() {
		return ErrBlockedRelation
	}

	if atomic, ok := s.repo.(AtomicFollowRepository); ok {
		if err := atomic.InsertFollowWithCounts(ctx, viewerID, targetID); err != nil {
			return mapWriteError(err, ErrAlreadyFollowing)
		}
	} else {
		if err := s.repo.InsertFollowEdge(ctx, viewerID, targetID); err != nil {
			return mapWriteError(err, ErrAlreadyFollowing)
		}
		s.adjustCounts(ctx, viewerID, targetID, 1)
	}

	s.afterAction(ctx, ActionFollow, viewerID, targetID)
	return nil
}

// Unfollow deletes viewer -> target
func (s *Service) Unfollow(ctx context.Context, viewerID, targetID uuid.UUID) error {
	follows, err := s.repo.QueryFollowEdges(ctx, viewerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if !follows.AFollowsB {
		return ErrNotFollowing
	}

	if err := s.deleteFollow(ctx, viewerID, targetID, ErrNotFollowing); err != nil {
		return err
	}

	s.afterAction(ctx, ActionUnfollow, viewerID, targetID)
	return nil
}

// RemoveFollower deletes target -> viewer
func (s *Service) RemoveFollower(ctx context.Context, viewerID, targetID uuid.UUID) error {
	follows, err := s.repo.QueryFollowEdges(ctx, viewerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if !follows.BFollowsA {
		return ErrNotAFollower
	}

	if err := s.deleteFollow(ctx, targetID, viewerID, ErrNotAFollower); err != nil {
		return err
	}

	s.afterAction(ctx, ActionRemoveFollower, viewerID, targetID)
	return nil
}

// BlockUser creates viewer -| target. Follow edges between the pair are left
// to the store to clean up.
func (s *Service) BlockUser(ctx context.Context, blockerID, targetID uuid.UUID) error {
	if blockerID == targetID {
		return ErrCannotTargetSelf
	}

	blocks, err := s.repo.QueryBlockEdges(ctx, blockerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if blocks.ABlocksB {
		return ErrAlreadyBlocked
	}

	block := &BlockRelation{
		ID:            uuid.New(),
		BlockerUserID: blockerID,
		BlockedUserID: targetID,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertBlockEdge(ctx, block); err != nil {
		return mapWriteError(err, ErrAlreadyBlocked)
	}

	s.afterAction(ctx, ActionBlock, blockerID, targetID)
	return nil
}

// UnblockUser deletes viewer -| target. Nothing removed by the block is restored.
func (s *Service) UnblockUser(ctx context.Context, blockerID, targetID uuid.UUID) error {
	blocks, err := s.repo.QueryBlockEdges(ctx, blockerID, targetID)
	if err != nil {
		return unavailable(err)
	}
	if !blocks.ABlocksB {
		return ErrBlockNotFound
	}

	if err := s.repo.DeleteBlockEdge(ctx, blockerID, targetID); err != nil {
		return mapWriteError(err, ErrBlockNotFound)
	}

	s.afterAction(ctx, ActionUnblock, blockerID, targetID)
	return nil
}

// HasBlocked checks if blockerID has blocked targetID
func (s *Service) HasBlocked(ctx context.Context, blockerID, targetID uuid.UUID) (bool, error) {
	blocks, err := s.repo.QueryBlockEdges(ctx, blockerID, targetID)
	if err != nil {
		return false, unavailable(err)
	}
	return blocks.ABlocksB, nil
}

// ListFollowers returns accounts following accountID, newest first. A block
// between viewer and account in either direction hides the list.
func (s *Service) ListFollowers(ctx context.Context, viewerID, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	if err := s.checkListVisible(ctx, viewerID, accountID); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.ListFollowers(ctx, accountID, limit, offset)
	if err != nil {
		return nil, unavailable(err)
	}
	return items, nil
}

// ListFollowing returns accounts accountID follows, newest first, with the
// same visibility rule as ListFollowers
func (s *Service) ListFollowing(ctx context.Context, viewerID, accountID uuid.UUID, limit, offset int) ([]*ProfileSummary, error) {
	if err := s.checkListVisible(ctx, viewerID, accountID); err != nil {
		return nil, err
	}
	limit, offset = normalizePage(limit, offset)
	items, err := s.repo.ListFollowing(ctx, accountID, limit, offset)
	if err != nil {
		return nil, unavailable(err)
	}
	return items, nil
}

// ListMyBlocks returns all users blocked by the given user with their profiles
func (s *Service) ListMyBlocks(ctx context.Context, userID uuid.UUID) ([]*BlockedAccount, error) {
	blocks, err := s.repo.ListBlocks(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	return blocks, nil
}

// ReconcileCounts recomputes the cached follower/following counters of an
// account from its edges. It repairs drift left by best-effort counter writes.
func (s *Service) ReconcileCounts(ctx context.Context, accountID uuid.UUID) (FollowCounts, error) {
	counts, err := s.repo.RecountFollows(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return FollowCounts{}, err
		}
		return FollowCounts{}, unavailable(err)
	}
	logger.LogInfo(ctx, "Follow counters reconciled",
		"account_id", accountID.String(),
		"followers", counts.Followers,
		"following", counts.Following,
	)
	return counts, nil
}

func (s *Service) checkListVisible(ctx context.Context, viewerID, accountID uuid.UUID) error {
	if viewerID == accountID {
		return nil
	}
	blocks, err := s.repo.QueryBlockEdges(ctx, viewerID, accountID)
	if err != nil {
		return unavailable(err)
	}
	if blocks.Any() {
		return ErrListHidden
	}
	return nil
}

func (s *Service) deleteFollow(ctx context.Context, followerID, followeeID uuid.UUID, missing error) error {
	if atomic, ok := s.repo.(AtomicFollowRepository); ok {
		if err := atomic.DeleteFollowWithCounts(ctx, followerID, followeeID); err != nil {
			return mapWriteError(err, missing)
		}
		return nil
	}

	if err := s.repo.DeleteFollowEdge(ctx, followerID, followeeID); err != nil {
		return mapWriteError(err, missing)
	}
	s.adjustCounts(ctx, followerID, followeeID, -1)
	return nil
}

// adjustCounts applies delta to follower's following count and followee's
// followers count. Failures are logged and swallowed; ReconcileCounts repairs them.
func (s *Service) adjustCounts(ctx context.Context, followerID, followeeID uuid.UUID, delta int) {
	if err := s.repo.AdjustFollowingCount(ctx, followerID, delta); err != nil {
		logger.LogWarn(ctx, "Failed to adjust following count",
			"account_id", followerID.String(),
			"delta", delta,
			"error", err.Error(),
		)
	}
	if err := s.repo.AdjustFollowerCount(ctx, followeeID, delta); err != nil {
		logger.LogWarn(ctx, "Failed to adjust followers count",
			"account_id", followeeID.String(),
			"delta", delta,
			"error", err.Error(),
		)
	}
}

func (s *Service) afterAction(ctx context.Context, action Action, actorID, targetID uuid.UUID) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, actorID, targetID)
	}

	logger.LogDebug(ctx, "Relationship action performed",
		"action", action.String(),
		"actor_id", actorID.String(),
		"target_id", targetID.String(),
	)

	if s.notifier == nil {
		return
	}
	event := &Event{
		Type:       EventRelationshipChanged,
		Action:     action,
		ActorID:    actorID,
		TargetID:   targetID,
		OccurredAt: s.now(),
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		logger.LogWarn(ctx, "Failed to publish relationship event",
			"action", action.String(),
			"error", err.Error(),
		)
	}
}

// mapWriteError keeps domain error classes reported by the store and wraps
// everything else as unavailable. Duplicate and missing rows found by the
// store after our pre-check map onto the action's own error.
func mapWriteError(err error, raceErr error) error {
	switch {
	case errors.Is(err, ErrConflict) && errors.Is(raceErr, ErrConflict):
		return raceErr
	case errors.Is(err, ErrNotFound) && errors.Is(raceErr, ErrNotFound):
		return raceErr
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidOperation):
		return err
	default:
		return unavailable(err)
	}
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
