package redemption

import "errors"

// Domain failures of the redemption workflow.
var (
	ErrInvalidType  = errors.New("unknown redemption type")
	ErrBelowMinimum = errors.New("amount below redemption minimum")
	ErrNotFound     = errors.New("redemption request not found")
	ErrNotPending   = errors.New("redemption request is not pending")
	ErrNotActive    = errors.New("redemption request already finalised")
	ErrUnauthorized = errors.New("request not owned by principal")
)
