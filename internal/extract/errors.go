package extract

import "errors"

// Sentinel errors returned by the backend client. Callers branch on these
// with errors.Is to decide between session-level, rate-limit and
// content-level handling.
var (
	// ErrUnauthorized is returned on HTTP 401/403. The session is invalid;
	// the task or row that triggered the call is not at fault.
	ErrUnauthorized = errors.New("extract: session rejected by backend")

	// ErrRateLimited is returned on HTTP 429 from the save-CSV endpoint.
	ErrRateLimited = errors.New("extract: rate limited")

	// ErrNoReceipts is returned when image analysis succeeds but yields
	// zero receipts (unreadable or ambiguous image).
	ErrNoReceipts = errors.New("extract: no receipts recognised in image")

	// ErrNoTransactions is returned when CSV analysis succeeds but yields
	// zero rows, which usually means the selected preset does not match
	// the file format.
	ErrNoTransactions = errors.New("extract: no transactions extracted from csv")
)
