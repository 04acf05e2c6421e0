package sync

import "errors"

// ErrSignInRequired is reported to user-triggered tasks when the account
// has no usable credential. Scheduled jobs skip the cycle instead.
var ErrSignInRequired = errors.New("sign-in required")

// ErrUnknownAccount is returned for account IDs with no registered client.
var ErrUnknownAccount = errors.New("unknown account")
