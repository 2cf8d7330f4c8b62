package account

import "errors"

// ErrNotFound is returned when no account exists for the requested id or
// principal. Transfer-side wrappers distinguish sender from receiver.
var ErrNotFound = errors.New("account not found")
