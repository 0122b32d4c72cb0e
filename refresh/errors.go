package refresh

import "errors"

var (
	// ErrCredentialExpired indicates the credential is already past its
	// expiry and cannot be refreshed proactively.
	ErrCredentialExpired = errors.New("refresh: credential expired, re-authentication required")

	// ErrNoExpiry indicates the token carries no exp claim.
	ErrNoExpiry = errors.New("refresh: token carries no expiry claim")

	// ErrMissingRefreshFunc indicates Config.Refresh was not provided.
	ErrMissingRefreshFunc = errors.New("refresh: refresh function is required")

	// ErrClosed indicates the scheduler has been closed.
	ErrClosed = errors.New("refresh: scheduler is closed")
)
