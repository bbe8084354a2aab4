package relationships

import (
	"time"

	"github.com/google/uuid"
)

// Relationship is the directed social relationship from a viewer to a target
type Relationship string

const (
	RelationshipNone      Relationship = "none"
	RelationshipFollowing Relationship = "following"
	RelationshipFollower  Relationship = "follower"
	RelationshipMutual    Relationship = "mutual"
	RelationshipBlocked   Relationship = "blocked"
	RelationshipBlockedBy Relationship = "blocked_by"
)

// IsBlocked reports whether a block edge exists in either direction
func (r Relationship) IsBlocked() bool {
	return r == RelationshipBlocked || r == RelationshipBlockedBy
}

// Inverse returns the relationship as seen from the target's side
func (r Relationship) Inverse() Relationship {
	switch r {
	case RelationshipFollowing:
		return RelationshipFollower
	case RelationshipFollower:
		return RelationshipFollowing
	case RelationshipBlocked:
		return RelationshipBlockedBy
	case RelationshipBlockedBy:
		return RelationshipBlocked
	default:
		return r
	}
}

// State is a point-in-time snapshot of a relationship and what the viewer may do
type State struct {
	Relationship          Relationship `json:"relationship"`
	CanFollow             bool         `json:"can_follow"`
	CanUnfollow           bool         `json:"can_unfollow"`
	CanRemoveFollower     bool         `json:"can_remove_follower"`
	CanMessage            bool         `json:"can_message"`
	CanViewPrivateContent bool         `json:"can_view_private_content"`
}

// FollowEdge represents follower -> followee
type FollowEdge struct {
	FollowerID uuid.UUID `db:"follower_id" json:"follower_id"`
	FolloweeID uuid.UUID `db:"followee_id" json:"followee_id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// BlockRelation represents a user-to-user block
type BlockRelation struct {
	ID            uuid.UUID `db:"id" json:"id"`
	BlockerUserID uuid.UUID `db:"blocker_user_id" json:"blocker_user_id"`
	BlockedUserID uuid.UUID `db:"blocked_user_id" json:"blocked_user_id"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// BlockedAccount is an outgoing block joined with the blocked account's
// profile. Profile fields are nil when the account has no profile.
type BlockedAccount struct {
	BlockRelation
	Username    *string `db:"username" json:"username,omitempty"`
	DisplayName *string `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// FollowEdges holds the follow edges between a and b
type FollowEdges struct {
	AFollowsB bool
	BFollowsA bool
}

// BlockEdges holds the block edges between a and b
type BlockEdges struct {
	ABlocksB bool
	BBlocksA bool
}

// Any reports whether a block exists in either direction
func (b BlockEdges) Any() bool {
	return b.ABlocksB || b.BBlocksA
}

// ProfileSummary is the slice of an account profile shown in follow lists
type ProfileSummary struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	DisplayName    *string   `db:"display_name" json:"display_name,omitempty"`
	AvatarURL      *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	FollowersCount int       `db:"followers_count" json:"followers_count"`
	FollowingCount int       `db:"following_count" json:"following_count"`
	EdgeCreatedAt  time.Time `db:"edge_created_at" json:"-"`
}

// FollowCounts are the cached counters stored on an account
type FollowCounts struct {
	Followers int `db:"followers_count" json:"followers_count"`
	Following int `db:"following_count" json:"following_count"`
}
