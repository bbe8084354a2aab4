package relationships

// DMReason explains a direct-message eligibility decision
type DMReason string

const (
	DMReasonMutualFollow DMReason = "mutual_follow"
	DMReasonNotFollowing DMReason = "not_following"
	DMReasonBlocked      DMReason = "blocked"
	DMReasonOneWayFollow DMReason = "one_way_follow"
)

// DMEligibility is the answer to "can the viewer message the target"
type DMEligibility struct {
	CanDM  bool     `json:"can_dm"`
	Reason DMReason `json:"reason"`
}

// StateFor maps a relationship onto its fixed permission set
func StateFor(rel Relationship) State {
	s := State{Relationship: rel}
	switch rel {
	case RelationshipNone:
		s.CanFollow = true
	case RelationshipFollowing:
		s.CanUnfollow = true
	case RelationshipFollower:
		s.CanFollow = true
		s.CanRemoveFollower = true
	case RelationshipMutual:
		s.CanUnfollow = true
		s.CanRemoveFollower = true
		s.CanMessage = true
		s.CanViewPrivateContent = true
	case RelationshipBlocked, RelationshipBlockedBy:
		// no actions while blocked
	}
	return s
}

// selfState is returned whenever viewer and target are the same account
func selfState() State {
	return State{Relationship: RelationshipNone}
}

// classifyBlocks returns the block relationship from a's side, if any.
// A block placed by the viewer wins over one placed by the target.
func classifyBlocks(b BlockEdges) (Relationship, bool) {
	switch {
	case b.ABlocksB:
		return RelationshipBlocked, true
	case b.BBlocksA:
		return RelationshipBlockedBy, true
	default:
		return "", false
	}
}

func classifyFollows(f FollowEdges) Relationship {
	switch {
	case f.AFollowsB && f.BFollowsA:
		return RelationshipMutual
	case f.AFollowsB:
		return RelationshipFollowing
	case f.BFollowsA:
		return RelationshipFollower
	default:
		return RelationshipNone
	}
}

// eligibilityFor applies block-first precedence so that CanDM always agrees
// with StateFor(...).CanMessage for the same edges.
func eligibilityFor(b BlockEdges, f FollowEdges) DMEligibility {
	if b.Any() {
		return DMEligibility{CanDM: false, Reason: DMReasonBlocked}
	}
	switch classifyFollows(f) {
	case RelationshipMutual:
		return DMEligibility{CanDM: true, Reason: DMReasonMutualFollow}
	case RelationshipFollowing, RelationshipFollower:
		return DMEligibility{CanDM: false, Reason: DMReasonOneWayFollow}
	default:
		return DMEligibility{CanDM: false, Reason: DMReasonNotFollowing}
	}
}

// EligibilityMessage returns the user-facing text for an eligibility reason
func EligibilityMessage(reason DMReason) string {
	switch reason {
	case DMReasonMutualFollow:
		return "You can send direct messages"
	case DMReasonOneWayFollow, DMReasonNotFollowing:
		return "Follow each other to send messages"
	default:
		return "Cannot send messages"
	}
}
