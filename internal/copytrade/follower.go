package copytrade

import (
	"context"
	"errors"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/risk"
)

var errFollowerStopped = errors.New("follower worker stopped")

type commandKind int

const (
	cmdTrade commandKind = iota
	cmdExitTick
	cmdDailyReset
	cmdResume
	cmdPersist
)

// command is one unit of work for a follower worker.
type command struct {
	kind  commandKind
	trade *domain.TargetTrade
	reply chan result // buffered; nil for fire-and-forget
}

type result struct {
	order *domain.MirroredOrder
	err   error
}

type followerCounters struct {
	filled     int
	skipped    int
	rejected   int
	duplicates int
}

// follower owns one session's ordered worker. Only the worker goroutine
// mutates governor state, except EmergencyStop.
type follower struct {
	sessionID    string
	targetWallet string
	timezone     string
	governor     *risk.Governor
	queue        chan command
	logger       logrus.FieldLogger

	cancel context.CancelFunc // stops worker and feed pump
	done   chan struct{}      // closed when the worker exits
	jobs   []cron.EntryID

	mu          sync.Mutex
	inFlight    context.CancelFunc
	counters    followerCounters
	lastTradeAt int64
}

func newFollower(cfg *domain.CopyTradeConfig, queueSize int, logger logrus.FieldLogger) *follower {
	log := logger.WithFields(logrus.Fields{
		"session": cfg.SessionID,
		"target":  cfg.TargetWallet,
	})
	return &follower{
		sessionID:    cfg.SessionID,
		targetWallet: cfg.TargetWallet,
		timezone:     cfg.Schedule.Timezone,
		governor:     risk.NewGovernor(cfg.SessionID, logger),
		queue:        make(chan command, queueSize),
		logger:       log,
		done:         make(chan struct{}),
	}
}

// call enqueues cmd and waits for the worker's result.
func (f *follower) call(ctx context.Context, cmd command) result {
	cmd.reply = make(chan result, 1)

	select {
	case f.queue <- cmd:
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-f.done:
		return result{err: errFollowerStopped}
	}

	select {
	case res := <-cmd.reply:
		return res
	case <-ctx.Done():
		return result{err: ctx.Err()}
	case <-f.done:
		select {
		case res := <-cmd.reply:
			return res
		default:
			return result{err: errFollowerStopped}
		}
	}
}

// offer enqueues cmd without waiting. Scheduled jobs use it; a full queue drops the tick.
func (f *follower) offer(cmd command) bool {
	select {
	case f.queue <- cmd:
		return true
	default:
		return false
	}
}

func (f *follower) setInFlight(cancel context.CancelFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = cancel
}

// cancelInFlight aborts the submit currently waiting on the broker, if any.
func (f *follower) cancelInFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight == nil {
		return false
	}
	f.inFlight()
	return true
}

func (f *follower) count(status domain.OrderStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch status {
	case domain.OrderFilled:
		f.counters.filled++
	case domain.OrderSkipped:
		f.counters.skipped++
	case domain.OrderRejected:
		f.counters.rejected++
	}
}

func (f *follower) countDuplicate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.duplicates++
}

func (f *follower) touch(ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ts > f.lastTradeAt {
		f.lastTradeAt = ts
	}
}

// FollowerStatus is a point-in-time copy of one follower's state.
type FollowerStatus struct {
	SessionID    string            `json:"session_id"`
	TargetWallet string            `json:"target_wallet"`
	Risk         domain.RiskState  `json:"risk"`
	Positions    []domain.Position `json:"positions"`
	Emergency    bool              `json:"emergency"`
	InFlight     bool              `json:"in_flight"`
	Filled       int               `json:"filled"`
	Skipped      int               `json:"skipped"`
	Rejected     int               `json:"rejected"`
	Duplicates   int               `json:"duplicates"`
	LastTradeAt  int64             `json:"last_trade_at"` // ms
}

func (f *follower) status() FollowerStatus {
	st := FollowerStatus{
		SessionID:    f.sessionID,
		TargetWallet: f.targetWallet,
		Risk:         f.governor.Snapshot(),
		Positions:    f.governor.Positions(),
		Emergency:    f.governor.Emergency(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	st.InFlight = f.inFlight != nil
	st.Filled = f.counters.filled
	st.Skipped = f.counters.skipped
	st.Rejected = f.counters.rejected
	st.Duplicates = f.counters.duplicates
	st.LastTradeAt = f.lastTradeAt
	return st
}

// position returns the open position in token, if any.
func (f *follower) position(token string) (domain.Position, bool) {
	for _, p := range f.governor.Positions() {
		if p.TokenAddress == token {
			return p, true
		}
	}
	return domain.Position{}, false
}
