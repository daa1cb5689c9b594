package storage

import "context"

// FeedProgress is the last committed cursor of a feed.
type FeedProgress struct {
	Feed      string // feed name, e.g. "launches" or "buys"
	Cursor    int64  // last committed cursor
	UpdatedAt int64  // ms
}

// StaleToken is a token whose classification cannot be trusted until its data is re-fetched.
type StaleToken struct {
	TokenAddress string
	Reason       string
	MarkedAt     int64 // ms
}

// FeedProgressStore provides persistence for feed consumer state.
// This enables resumption after restarts without reprocessing or skipping events.
type FeedProgressStore interface {
	// GetCursor returns the last committed cursor for a feed.
	// Returns ErrNotFound if no progress has been saved yet.
	GetCursor(ctx context.Context, feed string) (*FeedProgress, error)

	// SetCursor saves the last committed cursor for a feed.
	SetCursor(ctx context.Context, progress *FeedProgress) error

	// MarkStale records that a token's data has a gap. Marking twice keeps the first record.
	MarkStale(ctx context.Context, token *StaleToken) error

	// ClearStale removes the stale mark for a token.
	ClearStale(ctx context.Context, tokenAddress string) error

	// ListStale returns all stale tokens ordered by token address.
	ListStale(ctx context.Context) ([]*StaleToken, error)
}
