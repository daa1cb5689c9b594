package ingestion

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"solana-copytrade-lab/internal/domain"
)

// SliceLaunchFeed serves launches from memory. Useful for tests and file replays.
type SliceLaunchFeed struct {
	mu     sync.RWMutex
	events []*domain.TokenLaunch
}

// NewSliceLaunchFeed creates a feed over the given launches. Delivery order is preserved.
func NewSliceLaunchFeed(events []*domain.TokenLaunch) *SliceLaunchFeed {
	return &SliceLaunchFeed{events: events}
}

// Append adds launches to the end of the feed.
func (f *SliceLaunchFeed) Append(events ...*domain.TokenLaunch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

// Next returns up to limit launches with cursor > after, in delivery order.
func (f *SliceLaunchFeed) Next(_ context.Context, after int64, limit int) ([]*domain.TokenLaunch, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []*domain.TokenLaunch
	for _, ev := range f.events {
		if ev.Cursor > after {
			cp := *ev
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SliceBuyFeed serves buys from memory.
type SliceBuyFeed struct {
	mu     sync.RWMutex
	events []*domain.BuyEvent
}

// NewSliceBuyFeed creates a feed over the given buys. Delivery order is preserved.
func NewSliceBuyFeed(events []*domain.BuyEvent) *SliceBuyFeed {
	return &SliceBuyFeed{events: events}
}

// Append adds buys to the end of the feed.
func (f *SliceBuyFeed) Append(events ...*domain.BuyEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
}

// Next returns up to limit buys with cursor > after, in delivery order.
func (f *SliceBuyFeed) Next(_ context.Context, after int64, limit int) ([]*domain.BuyEvent, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []*domain.BuyEvent
	for _, ev := range f.events {
		if ev.Cursor > after {
			cp := *ev
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// launchRecord and buyRecord are the JSON lines accepted by the file loaders.
type launchRecord struct {
	Address         string  `json:"address"`
	Symbol          string  `json:"symbol"`
	LaunchTimestamp int64   `json:"launch_timestamp"`
	PeakMarketCap   float64 `json:"peak_market_cap"`
	Cursor          int64   `json:"cursor"`
}

type buyRecord struct {
	WalletAddress  string  `json:"wallet_address"`
	TokenAddress   string  `json:"token_address"`
	Timestamp      int64   `json:"timestamp"`
	SolAmount      float64 `json:"sol_amount"`
	MarketCapAtBuy float64 `json:"market_cap_at_buy"`
	TxSignature    string  `json:"tx_signature"`
	Cursor         int64   `json:"cursor"`
}

// LoadLaunchesJSONL reads one launch per line. Missing cursors are assigned
// by line order so exported dumps without sequence numbers still replay.
func LoadLaunchesJSONL(path string) ([]*domain.TokenLaunch, error) {
	var out []*domain.TokenLaunch
	err := readJSONL(path, func(line int, data []byte) error {
		var r launchRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if r.Cursor == 0 {
			r.Cursor = int64(line)
		}
		out = append(out, &domain.TokenLaunch{
			Address:         r.Address,
			Symbol:          r.Symbol,
			LaunchTimestamp: r.LaunchTimestamp,
			PeakMarketCap:   r.PeakMarketCap,
			Cursor:          r.Cursor,
		})
		return nil
	})
	return out, err
}

// LoadBuysJSONL reads one buy per line. Missing cursors are assigned by line order.
func LoadBuysJSONL(path string) ([]*domain.BuyEvent, error) {
	var out []*domain.BuyEvent
	err := readJSONL(path, func(line int, data []byte) error {
		var r buyRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		if r.Cursor == 0 {
			r.Cursor = int64(line)
		}
		out = append(out, &domain.BuyEvent{
			WalletAddress:  r.WalletAddress,
			TokenAddress:   r.TokenAddress,
			Timestamp:      r.Timestamp,
			SolAmount:      r.SolAmount,
			MarketCapAtBuy: r.MarketCapAtBuy,
			TxSignature:    r.TxSignature,
			Cursor:         r.Cursor,
		})
		return nil
	})
	return out, err
}

func readJSONL(path string, fn func(line int, data []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		line++
		if err := fn(line, data); err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// MemoryTradeFeed is an in-process TradeFeed. Publish fans out to subscribers
// of the trade's target wallet.
type MemoryTradeFeed struct {
	mu     sync.Mutex
	subs   map[string][]*tradeSub
	buffer int
}

type tradeSub struct {
	ch   chan *domain.TargetTrade
	done <-chan struct{}
}

// NewMemoryTradeFeed creates an in-process trade feed with per-subscriber buffering.
func NewMemoryTradeFeed(buffer int) *MemoryTradeFeed {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryTradeFeed{subs: make(map[string][]*tradeSub), buffer: buffer}
}

// Subscribe streams trades of wallet until ctx is cancelled.
func (f *MemoryTradeFeed) Subscribe(ctx context.Context, wallet string) (<-chan *domain.TargetTrade, error) {
	sub := &tradeSub{ch: make(chan *domain.TargetTrade, f.buffer), done: ctx.Done()}

	f.mu.Lock()
	f.subs[wallet] = append(f.subs[wallet], sub)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subs[wallet]
		for i, s := range subs {
			if s == sub {
				f.subs[wallet] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(sub.ch)
	}()
	return sub.ch, nil
}

// Publish delivers a trade to every subscriber of its target wallet.
// Blocks while a subscriber's buffer is full so no trade is lost.
func (f *MemoryTradeFeed) Publish(ctx context.Context, t *domain.TargetTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range f.subs[t.TargetWallet] {
		cp := *t
		select {
		case sub.ch <- &cp:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Verify interface compliance at compile time.
var (
	_ LaunchFeed = (*SliceLaunchFeed)(nil)
	_ BuyFeed    = (*SliceBuyFeed)(nil)
	_ TradeFeed  = (*MemoryTradeFeed)(nil)
	_ TradeFeed  = (*WSTradeFeed)(nil)
)
