package ledger

import "errors"

// Domain failures shared by every component that moves money. Callers match
// with errors.Is; services wrap these with operation context.
var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
)
