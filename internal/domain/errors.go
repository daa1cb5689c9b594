package domain

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrInvalidEvent  = errors.New("invalid event")
	ErrConfiguration = errors.New("configuration error")
	ErrFeedGap       = errors.New("feed gap")
	ErrSubmitTimeout = errors.New("submit timeout")
)

// InvalidEventError marks a malformed or pre-launch event. Dropped, not fatal to a batch.
type InvalidEventError struct {
	TokenAddress  string
	WalletAddress string
	Reason        string
}

func (e *InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event: token=%s wallet=%s: %s", e.TokenAddress, e.WalletAddress, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidEvent) work.
func (e *InvalidEventError) Is(target error) bool { return target == ErrInvalidEvent }

// ConfigurationError is returned at config-save time; it never reaches the orchestrator.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) work.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// FeedGapError reports a cursor discontinuity in a feed.
type FeedGapError struct {
	Feed     string
	Expected int64
	Got      int64
}

func (e *FeedGapError) Error() string {
	return fmt.Sprintf("feed gap on %s: expected cursor %d, got %d", e.Feed, e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrFeedGap) work.
func (e *FeedGapError) Is(target error) bool { return target == ErrFeedGap }

// SubmitTimeoutError means the broker outcome is unknown and must be reconciled.
type SubmitTimeoutError struct {
	SourceTradeID string
}

func (e *SubmitTimeoutError) Error() string {
	return fmt.Sprintf("submit timeout for %s: outcome unknown", e.SourceTradeID)
}

// Is makes errors.Is(err, ErrSubmitTimeout) work.
func (e *SubmitTimeoutError) Is(target error) bool { return target == ErrSubmitTimeout }
