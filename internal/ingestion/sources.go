package ingestion

import (
	"context"

	"solana-copytrade-lab/internal/domain"
)

// Feed names used for cursor persistence and metrics.
const (
	FeedLaunches = "launches"
	FeedBuys     = "buys"
)

// LaunchFeed is a restartable, append-only sequence of token launches.
type LaunchFeed interface {
	// Next returns up to limit launches with cursor > after.
	// Events may be delivered out of order; Consumer restores cursor order.
	Next(ctx context.Context, after int64, limit int) ([]*domain.TokenLaunch, error)
}

// BuyFeed is a restartable, append-only sequence of buy events.
type BuyFeed interface {
	// Next returns up to limit buys with cursor > after.
	// Events may be delivered out of order; Consumer restores cursor order.
	Next(ctx context.Context, after int64, limit int) ([]*domain.BuyEvent, error)
}

// TradeFeed pushes a target wallet's trades as they happen.
type TradeFeed interface {
	// Subscribe streams trades of wallet until ctx is cancelled, then closes the channel.
	Subscribe(ctx context.Context, wallet string) (<-chan *domain.TargetTrade, error)
}
