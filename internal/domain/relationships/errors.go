package relationships

import (
	"errors"
	"fmt"
)

// Error classes. Handlers switch on these with errors.Is.
var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrConflict         = errors.New("conflict")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnavailable      = errors.New("relationship store unavailable")
)

var (
	ErrCannotTargetSelf = fmt.Errorf("%w: cannot act on yourself", ErrInvalidOperation)
	ErrAlreadyFollowing = fmt.Errorf("%w: already following this user", ErrConflict)
	ErrAlreadyBlocked   = fmt.Errorf("%w: user is already blocked", ErrConflict)
	ErrNotFollowing     = fmt.Errorf("%w: not following this user", ErrNotFound)
	ErrNotAFollower     = fmt.Errorf("%w: this user is not following you", ErrNotFound)
	ErrBlockNotFound    = fmt.Errorf("%w: block not found", ErrNotFound)
	ErrAccountNotFound  = fmt.Errorf("%w: account not found", ErrNotFound)
	ErrBlockedRelation  = fmt.Errorf("%w: cannot follow this user", ErrForbidden)
	ErrListHidden       = fmt.Errorf("%w: this user's lists are not available", ErrForbidden)
)

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}
