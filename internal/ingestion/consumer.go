package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/storage"
)

// Consumer pulls launch and buy feeds into storage in cursor order.
// Cursor gaps mark the affected token stale; late events are dropped.
type Consumer struct {
	launchFeed    LaunchFeed
	buyFeed       BuyFeed
	launchStore   storage.TokenLaunchStore
	buyStore      storage.BuyEventStore
	progressStore storage.FeedProgressStore
	batchSize     int
	pollInterval  time.Duration
	retryMaxTime  time.Duration
	now           func() time.Time
	logger        logrus.FieldLogger

	launches *sequencer[*domain.TokenLaunch]
	buys     *sequencer[*domain.BuyEvent]
	fetched  map[string]int64 // highest cursor requested per feed
	loaded   bool

	mu    sync.Mutex
	stats ConsumerStats
}

// ConsumerOptions contains configuration for creating a Consumer.
type ConsumerOptions struct {
	LaunchFeed     LaunchFeed
	BuyFeed        BuyFeed
	LaunchStore    storage.TokenLaunchStore
	BuyStore       storage.BuyEventStore
	ProgressStore  storage.FeedProgressStore
	BatchSize      int           // Default: 500
	PollInterval   time.Duration // Default: 2s
	LatenessWindow time.Duration // Default: 30s
	RetryMaxTime   time.Duration // Default: 1m, bounds retries of a failing feed
	Clock          func() time.Time
	Logger         logrus.FieldLogger
}

// ConsumerStats are cumulative counters since the consumer was created.
type ConsumerStats struct {
	LaunchesStored int
	BuysStored     int
	Dropped        map[string]int
	Gaps           []*domain.FeedGapError
	LaunchCursor   int64
	BuyCursor      int64
}

// NewConsumer creates a new feed consumer.
func NewConsumer(opts ConsumerOptions) *Consumer {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	lateness := opts.LatenessWindow
	if lateness <= 0 {
		lateness = 30 * time.Second
	}
	retryMaxTime := opts.RetryMaxTime
	if retryMaxTime <= 0 {
		retryMaxTime = time.Minute
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Consumer{
		launchFeed:    opts.LaunchFeed,
		buyFeed:       opts.BuyFeed,
		launchStore:   opts.LaunchStore,
		buyStore:      opts.BuyStore,
		progressStore: opts.ProgressStore,
		batchSize:     batchSize,
		pollInterval:  pollInterval,
		retryMaxTime:  retryMaxTime,
		now:           now,
		logger:        logger.WithField("component", "feed-consumer"),
		launches:      newLaunchSequencer(lateness.Milliseconds()),
		buys:          newBuySequencer(lateness.Milliseconds()),
		fetched:       make(map[string]int64),
		stats:         ConsumerStats{Dropped: make(map[string]int)},
	}
}

// Run polls both feeds until ctx is cancelled, then flushes buffered events.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.load(ctx); err != nil {
		return err
	}
	c.logger.WithField("poll_interval", c.pollInterval).Info("feed consumer started")

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		n, err := c.poll(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("feed poll failed")
		}
		if err := c.commit(ctx, false); err != nil && ctx.Err() == nil {
			c.logger.WithError(err).Error("feed commit failed")
		}

		if n > 0 && ctx.Err() == nil {
			continue
		}

		select {
		case <-ctx.Done():
			// Ordering no longer matters on shutdown; persist what is buffered.
			if err := c.commit(context.WithoutCancel(ctx), true); err != nil {
				c.logger.WithError(err).Error("final flush failed")
			}
			c.logger.Info("feed consumer stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sync drains both feeds to their current end and flushes everything.
// Used for batch backfills.
func (c *Consumer) Sync(ctx context.Context) (ConsumerStats, error) {
	if err := c.load(ctx); err != nil {
		return c.Stats(), err
	}
	for {
		n, err := c.poll(ctx)
		if err != nil {
			return c.Stats(), err
		}
		if err := c.commit(ctx, false); err != nil {
			return c.Stats(), err
		}
		if n == 0 {
			break
		}
	}
	if err := c.commit(ctx, true); err != nil {
		return c.Stats(), err
	}
	return c.Stats(), nil
}

// Stats returns a copy of the consumer counters.
func (c *Consumer) Stats() ConsumerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.Dropped = make(map[string]int, len(c.stats.Dropped))
	for k, v := range c.stats.Dropped {
		out.Dropped[k] = v
	}
	out.Gaps = append([]*domain.FeedGapError(nil), c.stats.Gaps...)
	return out
}

// load restores committed cursors once.
func (c *Consumer) load(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	for feed, seq := range map[string]interface{ reset(int64) }{
		FeedLaunches: c.launches,
		FeedBuys:     c.buys,
	} {
		var cursor int64
		if c.progressStore != nil {
			p, err := c.progressStore.GetCursor(ctx, feed)
			switch {
			case err == nil:
				cursor = p.Cursor
			case errors.Is(err, storage.ErrNotFound):
			default:
				return fmt.Errorf("load %s cursor: %w", feed, err)
			}
		}
		seq.reset(cursor)
		c.fetched[feed] = cursor
		c.logger.WithFields(logrus.Fields{"feed": feed, "cursor": cursor}).Info("resuming feed")
	}
	c.loaded = true
	return nil
}

// poll fetches one batch from each feed. Returns the number of events received.
func (c *Consumer) poll(ctx context.Context) (int, error) {
	total := 0

	if c.launchFeed != nil {
		var batch []*domain.TokenLaunch
		err := c.retry(ctx, FeedLaunches, func() error {
			var err error
			batch, err = c.launchFeed.Next(ctx, c.fetched[FeedLaunches], c.batchSize)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("fetch launches: %w", err)
		}
		for _, l := range batch {
			c.advance(FeedLaunches, l.Cursor)
			c.drop(FeedLaunches, l.Address, l.Cursor, c.launches.push(l))
		}
		total += len(batch)
	}

	if c.buyFeed != nil {
		var batch []*domain.BuyEvent
		err := c.retry(ctx, FeedBuys, func() error {
			var err error
			batch, err = c.buyFeed.Next(ctx, c.fetched[FeedBuys], c.batchSize)
			return err
		})
		if err != nil {
			return total, fmt.Errorf("fetch buys: %w", err)
		}
		for _, b := range batch {
			c.advance(FeedBuys, b.Cursor)
			c.drop(FeedBuys, b.TokenAddress, b.Cursor, c.buys.push(b))
		}
		total += len(batch)
	}

	observability.UpdateLateBuffer(c.launches.buffered() + c.buys.buffered())
	return total, nil
}

// retry runs a feed call with bounded exponential backoff.
func (c *Consumer) retry(ctx context.Context, feed string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = c.retryMaxTime

	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		c.logger.WithFields(logrus.Fields{"feed": feed, "retry_in": wait}).WithError(err).Warn("feed fetch failed, retrying")
	})
}

func (c *Consumer) advance(feed string, cursor int64) {
	if cursor > c.fetched[feed] {
		c.fetched[feed] = cursor
		observability.UpdateHighestCursor(feed, cursor)
	}
}

func (c *Consumer) drop(feed, token string, cursor int64, reason string) {
	if reason == "" {
		return
	}
	c.logger.WithFields(logrus.Fields{
		"feed":   feed,
		"token":  token,
		"cursor": cursor,
		"reason": reason,
	}).Warn("skipping feed event")
	observability.RecordFeedDrop(reason)

	c.mu.Lock()
	c.stats.Dropped[reason]++
	c.mu.Unlock()
}

// commit stores released events, records gaps and persists cursors.
func (c *Consumer) commit(ctx context.Context, force bool) error {
	launches, launchGaps := c.launches.drain(force)
	buys, buyGaps := c.buys.drain(force)

	for _, g := range append(launchGaps, buyGaps...) {
		if err := c.recordGap(ctx, g); err != nil {
			c.launches.requeue(launches)
			c.buys.requeue(buys)
			return err
		}
	}

	// Launches first so buys of a new token find their launch.
	for i, l := range launches {
		if err := c.launchStore.Insert(ctx, l); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			c.launches.requeue(launches[i:])
			c.buys.requeue(buys)
			return fmt.Errorf("store launch %s: %w", l.Address, err)
		}
		observability.RecordFeedEvent("launch")
	}
	for i, b := range buys {
		if err := c.buyStore.Insert(ctx, b); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			c.buys.requeue(buys[i:])
			return fmt.Errorf("store buy %s: %w", b.TxSignature, err)
		}
		observability.RecordFeedEvent("buy")
	}

	if err := c.saveCursor(ctx, FeedLaunches, c.launches.committed); err != nil {
		return err
	}
	if err := c.saveCursor(ctx, FeedBuys, c.buys.committed); err != nil {
		return err
	}

	c.mu.Lock()
	c.stats.LaunchesStored += len(launches)
	c.stats.BuysStored += len(buys)
	c.stats.LaunchCursor = c.launches.committed
	c.stats.BuyCursor = c.buys.committed
	c.mu.Unlock()

	observability.UpdateLateBuffer(c.launches.buffered() + c.buys.buffered())
	return nil
}

func (c *Consumer) recordGap(ctx context.Context, g gap) error {
	c.logger.WithFields(logrus.Fields{
		"feed":     g.err.Feed,
		"expected": g.err.Expected,
		"got":      g.err.Got,
		"token":    g.token,
	}).Error("feed cursor gap, marking token stale")
	observability.RecordFeedGap(g.err.Feed)

	c.mu.Lock()
	c.stats.Gaps = append(c.stats.Gaps, g.err)
	c.mu.Unlock()

	if c.progressStore == nil || g.token == "" {
		return nil
	}
	err := c.progressStore.MarkStale(ctx, &storage.StaleToken{
		TokenAddress: g.token,
		Reason:       g.err.Error(),
		MarkedAt:     c.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("mark %s stale: %w", g.token, err)
	}
	return nil
}

func (c *Consumer) saveCursor(ctx context.Context, feed string, cursor int64) error {
	if c.progressStore == nil || cursor == 0 {
		return nil
	}
	err := c.progressStore.SetCursor(ctx, &storage.FeedProgress{
		Feed:      feed,
		Cursor:    cursor,
		UpdatedAt: c.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("save %s cursor: %w", feed, err)
	}
	return nil
}
