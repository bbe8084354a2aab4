package moderation

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidReport  = errors.New("invalid report")
	ErrTargetNotFound = errors.New("reported user not found")

	ErrCannotReportSelf = fmt.Errorf("%w: cannot report yourself", ErrInvalidReport)
	ErrReasonRequired   = fmt.Errorf("%w: report reason is required", ErrInvalidReport)
	ErrReasonTooLong    = fmt.Errorf("%w: report reason cannot exceed %d characters", ErrInvalidReport, MaxReasonLength)
	ErrInvalidContext   = fmt.Errorf("%w: invalid report context", ErrInvalidReport)
)
