package copytrade

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/ingestion"
	"solana-copytrade-lab/internal/notify"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/risk"
	"solana-copytrade-lab/internal/storage"
)

// ErrUnknownSession is returned for a session without a running follower.
var ErrUnknownSession = errors.New("unknown copy-trade session")

// Orchestrator mirrors target wallet trades for every configured follower session.
// Each session has one worker goroutine that processes its trades in order;
// sessions run concurrently.
type Orchestrator struct {
	// Stores
	configStore   storage.CopyTradeConfigStore
	orderStore    storage.MirroredOrderStore
	riskStore     storage.RiskStateStore
	positionStore storage.PositionStore

	feed        ingestion.TradeFeed
	liveBroker  Broker
	paperBroker Broker
	notifier    notify.Notifier
	scheduler   *risk.Scheduler

	submitTimeout   time.Duration
	retryInitial    time.Duration
	retryMaxElapsed time.Duration
	exitInterval    time.Duration
	sessionRefresh  time.Duration
	queueSize       int
	now             func() time.Time
	logger          logrus.FieldLogger

	mu        sync.RWMutex
	followers map[string]*follower
	started   bool
	wg        sync.WaitGroup
}

// Options for creating Orchestrator.
type Options struct {
	// Required stores
	ConfigStore   storage.CopyTradeConfigStore
	OrderStore    storage.MirroredOrderStore
	RiskStore     storage.RiskStateStore
	PositionStore storage.PositionStore

	// Feed streams target wallet trades. Nil means trades arrive only via Process.
	Feed ingestion.TradeFeed

	// Brokers by mode. PaperBroker defaults to a new PaperBroker.
	LiveBroker  Broker
	PaperBroker Broker

	Notifier  notify.Notifier
	Scheduler *risk.Scheduler // Default: a new scheduler owned by the orchestrator

	SubmitTimeout   time.Duration // Default: 10s per broker call
	RetryInitial    time.Duration // Default: 250ms
	RetryMaxElapsed time.Duration // Default: 30s total per order
	ExitInterval    time.Duration // Default: 15s between exit evaluations
	SessionRefresh  time.Duration // Default: 30s; negative disables
	QueueSize       int           // Default: 256 commands per follower
	Clock           func() time.Time
	Logger          logrus.FieldLogger
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "copytrade")

	o := &Orchestrator{
		configStore:     opts.ConfigStore,
		orderStore:      opts.OrderStore,
		riskStore:       opts.RiskStore,
		positionStore:   opts.PositionStore,
		feed:            opts.Feed,
		liveBroker:      opts.LiveBroker,
		paperBroker:     opts.PaperBroker,
		notifier:        opts.Notifier,
		scheduler:       opts.Scheduler,
		submitTimeout:   opts.SubmitTimeout,
		retryInitial:    opts.RetryInitial,
		retryMaxElapsed: opts.RetryMaxElapsed,
		exitInterval:    opts.ExitInterval,
		sessionRefresh:  opts.SessionRefresh,
		queueSize:       opts.QueueSize,
		now:             opts.Clock,
		logger:          logger,
		followers:       make(map[string]*follower),
	}

	if o.paperBroker == nil {
		o.paperBroker = NewPaperBroker()
	}
	if o.notifier == nil {
		o.notifier = notify.Discard{}
	}
	if o.scheduler == nil {
		o.scheduler = risk.NewScheduler(logger)
	}
	if o.submitTimeout <= 0 {
		o.submitTimeout = 10 * time.Second
	}
	if o.retryInitial <= 0 {
		o.retryInitial = 250 * time.Millisecond
	}
	if o.retryMaxElapsed <= 0 {
		o.retryMaxElapsed = 30 * time.Second
	}
	if o.exitInterval <= 0 {
		o.exitInterval = 15 * time.Second
	}
	if o.sessionRefresh == 0 {
		o.sessionRefresh = 30 * time.Second
	}
	if o.queueSize <= 0 {
		o.queueSize = 256
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Run starts every configured session and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	o.Stop()
	return nil
}

// Start launches workers for all sessions and returns. Workers stop when ctx is cancelled;
// call Stop afterwards to wait for them.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("orchestrator already started")
	}
	o.started = true
	o.mu.Unlock()

	if err := o.Sync(ctx); err != nil {
		return err
	}
	o.scheduler.Start()

	if o.sessionRefresh > 0 {
		o.wg.Add(1)
		go o.refreshLoop(ctx)
	}
	return nil
}

// Stop waits for workers after their context was cancelled.
func (o *Orchestrator) Stop() {
	o.scheduler.Stop()
	o.wg.Wait()
	observability.SetActiveFollowers(0)
}

// Sync starts workers for sessions that appeared since the last call and restarts
// sessions whose latest config watches a different target wallet.
func (o *Orchestrator) Sync(ctx context.Context) error {
	configs, err := o.configStore.ListLatest(ctx)
	if err != nil {
		return fmt.Errorf("list session configs: %w", err)
	}

	for _, cfg := range configs {
		o.mu.RLock()
		existing, running := o.followers[cfg.SessionID]
		o.mu.RUnlock()

		if running {
			if existing.targetWallet == cfg.TargetWallet {
				continue
			}
			existing.logger.WithField("new_target", cfg.TargetWallet).Info("target wallet changed, restarting follower")
			o.stopFollower(existing)
		}

		if err := o.startFollower(ctx, cfg); err != nil {
			return fmt.Errorf("start session %s: %w", cfg.SessionID, err)
		}
	}
	return nil
}

func (o *Orchestrator) refreshLoop(ctx context.Context) {
	defer o.wg.Done()

	ticker := time.NewTicker(o.sessionRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := o.Sync(ctx); err != nil && ctx.Err() == nil {
				o.logger.WithError(err).Warn("session refresh failed")
			}
		}
	}
}

func (o *Orchestrator) startFollower(ctx context.Context, cfg *domain.CopyTradeConfig) error {
	f := newFollower(cfg, o.queueSize, o.logger)

	state, err := o.riskStore.GetLatest(ctx, f.sessionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load risk state: %w", err)
	}
	positions, err := o.positionStore.List(ctx, f.sessionID)
	if err != nil {
		return fmt.Errorf("load positions: %w", err)
	}
	f.governor.Restore(state, positions)

	if err := o.recoverOrders(ctx, f); err != nil {
		f.logger.WithError(err).Warn("order recovery incomplete")
	}

	fctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	var trades <-chan *domain.TargetTrade
	if o.feed != nil {
		trades, err = o.feed.Subscribe(fctx, f.targetWallet)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to %s: %w", f.targetWallet, err)
		}
	}

	resetID, err := o.scheduler.AddDailyReset(tzOrUTC(f.timezone), func() {
		if !f.offer(command{kind: cmdDailyReset}) {
			f.logger.Warn("queue full, daily reset deferred to next admission")
		}
	})
	if err != nil {
		cancel()
		return err
	}
	exitID, err := o.scheduler.Every(o.exitInterval, func() {
		f.offer(command{kind: cmdExitTick})
	})
	if err != nil {
		o.scheduler.Remove(resetID)
		cancel()
		return err
	}
	f.jobs = append(f.jobs, resetID, exitID)

	o.mu.Lock()
	o.followers[f.sessionID] = f
	active := len(o.followers)
	o.mu.Unlock()
	observability.SetActiveFollowers(active)

	o.wg.Add(1)
	go o.work(fctx, f)
	if trades != nil {
		o.wg.Add(1)
		go o.pump(fctx, f, trades)
	}

	f.logger.WithField("open_positions", len(positions)).Info("follower started")
	return nil
}

func (o *Orchestrator) stopFollower(f *follower) {
	for _, id := range f.jobs {
		o.scheduler.Remove(id)
	}
	f.cancel()
	<-f.done

	o.mu.Lock()
	if o.followers[f.sessionID] == f {
		delete(o.followers, f.sessionID)
	}
	o.mu.Unlock()
}

// work is the follower's single ordered worker.
func (o *Orchestrator) work(ctx context.Context, f *follower) {
	defer o.wg.Done()
	defer close(f.done)

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-f.queue:
			res := o.handle(ctx, f, cmd)
			if cmd.reply != nil {
				cmd.reply <- res
			}
		}
	}
}

// pump forwards feed trades to the worker, waiting for each to be handled.
func (o *Orchestrator) pump(ctx context.Context, f *follower, trades <-chan *domain.TargetTrade) {
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case trade, ok := <-trades:
			if !ok {
				return
			}
			f.call(ctx, command{kind: cmdTrade, trade: trade})
		}
	}
}

func (o *Orchestrator) handle(ctx context.Context, f *follower, cmd command) result {
	var res result
	switch cmd.kind {
	case cmdTrade:
		res.order, res.err = o.processTrade(ctx, f, cmd.trade)
	case cmdExitTick:
		res.err = o.evaluateExits(ctx, f)
	case cmdDailyReset:
		res.err = o.dailyReset(ctx, f)
	case cmdResume:
		res.err = o.resume(ctx, f)
	case cmdPersist:
		res.err = o.persistRisk(ctx, f)
	}
	if res.err != nil && ctx.Err() == nil {
		f.logger.WithError(res.err).Error("follower command failed")
	}
	return res
}

func (o *Orchestrator) follower(sessionID string) (*follower, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	f, ok := o.followers[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, sessionID)
	}
	return f, nil
}

// selected returns one follower, or all of them when sessionID is empty.
func (o *Orchestrator) selected(sessionID string) ([]*follower, error) {
	if sessionID != "" {
		f, err := o.follower(sessionID)
		if err != nil {
			return nil, err
		}
		return []*follower{f}, nil
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*follower, 0, len(o.followers))
	for _, f := range o.followers {
		out = append(out, f)
	}
	return out, nil
}

// Process mirrors one target trade for a session and returns the resulting order.
// It goes through the session's worker, so it is ordered with feed trades.
func (o *Orchestrator) Process(ctx context.Context, sessionID string, trade *domain.TargetTrade) (*domain.MirroredOrder, error) {
	f, err := o.follower(sessionID)
	if err != nil {
		return nil, err
	}
	res := f.call(ctx, command{kind: cmdTrade, trade: trade})
	return res.order, res.err
}

// EvaluateExits runs one stop-loss/take-profit pass for a session.
func (o *Orchestrator) EvaluateExits(ctx context.Context, sessionID string) error {
	f, err := o.follower(sessionID)
	if err != nil {
		return err
	}
	return f.call(ctx, command{kind: cmdExitTick}).err
}

// EmergencyStop halts one session, or every session when sessionID is empty.
// The governor flips to HALTED immediately and any in-flight submit is cancelled.
// Filled orders and open positions are left untouched.
func (o *Orchestrator) EmergencyStop(ctx context.Context, sessionID string) error {
	targets, err := o.selected(sessionID)
	if err != nil {
		return err
	}

	now := o.now()
	for _, f := range targets {
		f.governor.EmergencyStop(now)
		cancelled := f.cancelInFlight()
		f.logger.WithField("cancelled_submit", cancelled).Warn("emergency stop")

		ev := notify.NewEvent(notify.EventEmergencyStop, now)
		ev.SessionID = f.sessionID
		ev.Reason = risk.HaltEmergencyStop
		o.notifier.Notify(ev)
	}

	var errs []error
	for _, f := range targets {
		if err := f.call(ctx, command{kind: cmdPersist}).err; err != nil {
			errs = append(errs, fmt.Errorf("persist %s: %w", f.sessionID, err))
		}
	}
	return errors.Join(errs...)
}

// Resume lifts an emergency stop for one session, or every session when sessionID is empty.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	targets, err := o.selected(sessionID)
	if err != nil {
		return err
	}
	var errs []error
	for _, f := range targets {
		if err := f.call(ctx, command{kind: cmdResume}).err; err != nil {
			errs = append(errs, fmt.Errorf("resume %s: %w", f.sessionID, err))
		}
	}
	return errors.Join(errs...)
}

// Status is a read-only snapshot of all followers.
type Status struct {
	Followers      []FollowerStatus `json:"followers"`
	WatchedWallets int              `json:"watched_wallets"`
	OpenPositions  int              `json:"open_positions"`
	ActiveOrders   int              `json:"active_orders"`
}

// Status returns copies of every follower's state. It never waits on a worker.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	followers := make([]*follower, 0, len(o.followers))
	for _, f := range o.followers {
		followers = append(followers, f)
	}
	o.mu.RUnlock()

	st := Status{Followers: make([]FollowerStatus, 0, len(followers))}
	wallets := make(map[string]bool)
	for _, f := range followers {
		fs := f.status()
		st.Followers = append(st.Followers, fs)
		wallets[fs.TargetWallet] = true
		st.OpenPositions += len(fs.Positions)
		if fs.InFlight {
			st.ActiveOrders++
		}
	}
	st.WatchedWallets = len(wallets)
	sort.Slice(st.Followers, func(i, j int) bool {
		return st.Followers[i].SessionID < st.Followers[j].SessionID
	})
	return st
}

// FollowerStatus returns one session's snapshot.
func (o *Orchestrator) FollowerStatus(sessionID string) (FollowerStatus, error) {
	f, err := o.follower(sessionID)
	if err != nil {
		return FollowerStatus{}, err
	}
	return f.status(), nil
}

func tzOrUTC(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}
