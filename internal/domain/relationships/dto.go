package relationships

import (
	"time"

	"github.com/google/uuid"

	"github.com/snacc/snacc-api/internal/pkg/validator"
)

func init() {
	validator.RegisterOneOf("relationship_action", ActionNames())
}

// ActionRequest for POST /relationships/{id}/actions
type ActionRequest struct {
	Action string `json:"action" validate:"required,relationship_action"`
}

// DMEligibilityResponse adds the user-facing message to an eligibility decision
type DMEligibilityResponse struct {
	CanDM   bool     `json:"can_dm"`
	Reason  DMReason `json:"reason"`
	Message string   `json:"message"`
}

// DMEligibilityResponseFrom converts eligibility to response
func DMEligibilityResponseFrom(e *DMEligibility) *DMEligibilityResponse {
	return &DMEligibilityResponse{
		CanDM:   e.CanDM,
		Reason:  e.Reason,
		Message: EligibilityMessage(e.Reason),
	}
}

// ActionResponse is returned after a successful action
type ActionResponse struct {
	Action string `json:"action"`
	State  *State `json:"state"` // nil when the state could not be re-read
}

// ProfileListItem is one entry of a followers/following list
type ProfileListItem struct {
	*ProfileSummary
	FollowedAt string `json:"followed_at"`
}

// ProfileListFromSummaries converts summaries to list items
func ProfileListFromSummaries(items []*ProfileSummary) []*ProfileListItem {
	out := make([]*ProfileListItem, 0, len(items))
	for _, p := range items {
		out = append(out, &ProfileListItem{
			ProfileSummary: p,
			FollowedAt:     p.EdgeCreatedAt.Format(time.RFC3339),
		})
	}
	return out
}

// UnknownUsername is shown for blocked accounts without a profile
const UnknownUsername = "Unknown"

// BlockedUserResponse represents a blocked user in API response
type BlockedUserResponse struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	DisplayName *string   `json:"display_name,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	BlockedAt   string    `json:"blocked_at"`
}

// BlockedUserFromEntity converts entity to response
func BlockedUserFromEntity(block *BlockedAccount) *BlockedUserResponse {
	username := UnknownUsername
	if block.Username != nil && *block.Username != "" {
		username = *block.Username
	}
	return &BlockedUserResponse{
		ID:          block.ID,
		UserID:      block.BlockedUserID,
		Username:    username,
		DisplayName: block.DisplayName,
		AvatarURL:   block.AvatarURL,
		BlockedAt:   block.CreatedAt.Format(time.RFC3339),
	}
}

// PageMeta describes an offset page
type PageMeta struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ProfileListResponse wraps a page of profiles
type ProfileListResponse struct {
	Items []*ProfileListItem `json:"items"`
	Page  PageMeta           `json:"page"`
}
