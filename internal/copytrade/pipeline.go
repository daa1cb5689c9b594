package copytrade

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/idhash"
	"solana-copytrade-lab/internal/notify"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/proration"
	"solana-copytrade-lab/internal/risk"
	"solana-copytrade-lab/internal/schedule"
	"solana-copytrade-lab/internal/storage"
)

// Reject reasons recorded on mirrored orders.
const (
	RejectInvalidSchedule = "invalid-schedule"
	RejectNoBroker        = "no-broker"
	RejectBroker          = "broker-rejected"
	RejectSubmitFailed    = "submit-failed"
	RejectSubmitTimeout   = "submit-timeout"
	RejectInterrupted     = "interrupted"
)

var errEmergencyStop = errors.New("emergency stop in force")

// processTrade runs one target trade through dedup, schedule gate, proration,
// risk admission and submission.
func (o *Orchestrator) processTrade(ctx context.Context, f *follower, trade *domain.TargetTrade) (*domain.MirroredOrder, error) {
	if trade == nil || !trade.Side.IsValid() || trade.TxSignature == "" || trade.TokenAddress == "" {
		return nil, &domain.InvalidEventError{Reason: "malformed target trade"}
	}
	if trade.TargetWallet != f.targetWallet {
		return nil, &domain.InvalidEventError{
			TokenAddress:  trade.TokenAddress,
			WalletAddress: trade.TargetWallet,
			Reason:        "trade is not from the watched wallet " + f.targetWallet,
		}
	}

	observability.RecordTargetTrade(string(trade.Side))
	f.touch(trade.Timestamp)
	o.observePrice(trade.TokenAddress, trade.Price)

	now := o.now()
	id := idhash.ComputeSourceTradeID(f.sessionID, trade.TargetWallet, trade.TxSignature, trade.EventIndex)
	log := f.logger.WithFields(logrus.Fields{
		"source_trade_id": id,
		"token":           trade.TokenAddress,
		"side":            trade.Side,
	})

	existing, err := o.orderStore.Get(ctx, id)
	if err == nil {
		return o.duplicate(ctx, f, existing, log)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	order := &domain.MirroredOrder{
		SourceTradeID: id,
		SessionID:     f.sessionID,
		TargetWallet:  trade.TargetWallet,
		TokenAddress:  trade.TokenAddress,
		Side:          trade.Side,
		Size:          decimal.Zero,
		Status:        domain.OrderPending,
		CreatedAt:     now.UnixMilli(),
		UpdatedAt:     now.UnixMilli(),
	}

	stored, err := o.configStore.GetLatest(ctx, f.sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return o.record(ctx, f, order, domain.OrderSkipped, domain.SkipReasonConfigMissing, log)
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := stored.WithDefaults()
	order.FollowerWallet = cfg.FollowerWallet()
	order.ConfigVersion = cfg.Version

	// Schedule gate
	tradeable, err := schedule.Tradeable(now, cfg.Schedule)
	if err != nil {
		log.WithError(err).Error("stored schedule cannot be evaluated")
		return o.record(ctx, f, order, domain.OrderRejected, RejectInvalidSchedule, log)
	}
	if !tradeable {
		return o.record(ctx, f, order, domain.OrderSkipped, domain.SkipReasonOutsideSchedule, log)
	}

	// Proration applies to buys; a mirrored sell closes the follower's position.
	if trade.Side == domain.SideBuy {
		decision := proration.Calculate(trade.SolAmount, cfg.Budget, cfg.Risk)
		if decision.Skip {
			return o.record(ctx, f, order, domain.OrderSkipped, decision.Reason, log)
		}
		order.Size = decision.Size
	}

	// Risk admission
	admission, err := o.admit(ctx, f, now, trade.Side, trade.TokenAddress, cfg)
	if err != nil {
		return nil, err
	}
	if !admission.Allowed {
		return o.record(ctx, f, order, domain.OrderSkipped, admission.Reason, log)
	}
	if admission.Throttled {
		log.Warn("follower throttled: trade admitted near the daily loss limit")
	}
	if trade.Side == domain.SideSell {
		pos, _ := f.position(trade.TokenAddress)
		order.Size = pos.Size
	}

	if err := o.orderStore.Insert(ctx, order); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			existing, getErr := o.orderStore.Get(ctx, id)
			if getErr != nil {
				return nil, fmt.Errorf("get order %s: %w", id, getErr)
			}
			return o.duplicate(ctx, f, existing, log)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	observability.RecordOrderStatus(string(domain.OrderPending))

	return o.execute(ctx, f, &cfg, order, nil, log)
}

// admit runs the governor check and persists day rollovers and state changes.
func (o *Orchestrator) admit(ctx context.Context, f *follower, now time.Time, side domain.OrderSide, token string, cfg domain.CopyTradeConfig) (risk.Admission, error) {
	dayBefore := f.governor.Snapshot().TradingDay
	admission, tr := f.governor.Admit(now, side, token, cfg.Risk, cfg.Schedule.Timezone)
	if tr.Changed() || f.governor.Snapshot().TradingDay != dayBefore {
		if err := o.persistRisk(ctx, f); err != nil {
			return admission, err
		}
		o.announceTransition(f, tr)
	}
	return admission, nil
}

// duplicate handles a trade whose order already exists.
// Terminal orders are left alone; an order left pending or submitted is reconciled.
func (o *Orchestrator) duplicate(ctx context.Context, f *follower, existing *domain.MirroredOrder, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	f.countDuplicate()
	observability.RecordOrderSkipped(domain.SkipReasonDuplicate)

	if existing.Status.IsTerminal() {
		log.WithField("status", existing.Status).Debug("duplicate target trade ignored")
		return existing, nil
	}

	stored, err := o.configStore.GetLatest(ctx, f.sessionID)
	if err != nil {
		return existing, fmt.Errorf("load config: %w", err)
	}
	cfg := stored.WithDefaults()
	log.WithField("status", existing.Status).Info("reconciling unfinished order")
	return o.reconcile(ctx, f, &cfg, existing, log)
}

// recoverOrders reconciles orders a previous run left unfinished.
func (o *Orchestrator) recoverOrders(ctx context.Context, f *follower) error {
	var open []*domain.MirroredOrder
	for _, status := range []domain.OrderStatus{domain.OrderPending, domain.OrderSubmitted} {
		orders, err := o.orderStore.ListByStatus(ctx, f.sessionID, status)
		if err != nil {
			return fmt.Errorf("list %s orders: %w", status, err)
		}
		open = append(open, orders...)
	}
	if len(open) == 0 {
		return nil
	}

	stored, err := o.configStore.GetLatest(ctx, f.sessionID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := stored.WithDefaults()

	for _, order := range open {
		log := f.logger.WithFields(logrus.Fields{"source_trade_id": order.SourceTradeID, "token": order.TokenAddress})
		if _, err := o.reconcile(ctx, f, &cfg, order, log); err != nil {
			log.WithError(err).Warn("order reconciliation failed")
		}
	}
	return nil
}

// reconcile asks the broker for the real outcome of an unfinished order.
// Orders the broker never saw are rejected rather than resubmitted late.
func (o *Orchestrator) reconcile(ctx context.Context, f *follower, cfg *domain.CopyTradeConfig, order *domain.MirroredOrder, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	broker, err := o.brokerFor(cfg.Mode)
	if err != nil {
		return o.transition(ctx, f, order, domain.OrderRejected, RejectNoBroker, nil, log)
	}

	qctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
	defer cancel()
	fill, err := broker.QueryStatus(qctx, order.SourceTradeID)
	switch {
	case err == nil:
		observability.RecordReconcile("found")
		return o.applyFill(ctx, f, cfg, order, fill, o.exitFor(f, order), log)
	case errors.Is(err, ErrOrderUnknown):
		observability.RecordReconcile("unknown")
		return o.transition(ctx, f, order, domain.OrderRejected, RejectInterrupted, nil, log)
	default:
		observability.RecordReconcile("error")
		return order, fmt.Errorf("query status: %w", err)
	}
}

// execute submits a pending order and applies the outcome.
func (o *Orchestrator) execute(ctx context.Context, f *follower, cfg *domain.CopyTradeConfig, order *domain.MirroredOrder, exit *risk.ExitSignal, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	broker, err := o.brokerFor(cfg.Mode)
	if err != nil {
		return o.transition(ctx, f, order, domain.OrderRejected, RejectNoBroker, nil, log)
	}

	fill, err := o.submit(ctx, f, broker, order, log)
	if err == nil {
		return o.applyFill(ctx, f, cfg, order, fill, exit, log)
	}

	switch {
	case ctx.Err() != nil:
		// Shutdown: the order stays pending and is reconciled on restart.
		return order, ctx.Err()

	case f.governor.Emergency():
		// The broker may have acknowledged before the cancel; a fill stands.
		qctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
		defer cancel()
		if fill, qerr := broker.QueryStatus(qctx, order.SourceTradeID); qerr == nil && fill.Status != FillRejected {
			return o.applyFill(ctx, f, cfg, order, fill, exit, log)
		}
		return o.transition(ctx, f, order, domain.OrderRejected, domain.SkipReasonEmergencyStop, nil, log)

	case errors.Is(err, domain.ErrSubmitTimeout):
		qctx, cancel := context.WithTimeout(ctx, o.submitTimeout)
		defer cancel()
		fill, qerr := broker.QueryStatus(qctx, order.SourceTradeID)
		switch {
		case qerr == nil:
			observability.RecordReconcile("found")
			return o.applyFill(ctx, f, cfg, order, fill, exit, log)
		case errors.Is(qerr, ErrOrderUnknown):
			observability.RecordReconcile("unknown")
			return o.transition(ctx, f, order, domain.OrderRejected, RejectSubmitTimeout, nil, log)
		default:
			observability.RecordReconcile("error")
			log.WithError(qerr).Error("submit outcome unknown, order left pending")
			return order, err
		}

	default:
		log.WithError(err).Warn("submit failed after retries")
		return o.transition(ctx, f, order, domain.OrderRejected, RejectSubmitFailed, nil, log)
	}
}

// submit sends the order with bounded exponential backoff.
// A timed-out attempt is reconciled through QueryStatus before the next submit.
func (o *Orchestrator) submit(ctx context.Context, f *follower, broker Broker, order *domain.MirroredOrder, log logrus.FieldLogger) (Fill, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Registered before the emergency check so a concurrent stop always cancels us.
	f.setInFlight(cancel)
	defer f.setInFlight(nil)

	req := SubmitRequest{
		SourceTradeID:  order.SourceTradeID,
		FollowerWallet: order.FollowerWallet,
		TokenAddress:   order.TokenAddress,
		Side:           order.Side,
		Size:           order.Size,
	}

	unknown := false
	operation := func() (Fill, error) {
		if f.governor.Emergency() {
			return Fill{}, backoff.Permanent(errEmergencyStop)
		}

		if unknown {
			fill, err := broker.QueryStatus(subCtx, order.SourceTradeID)
			switch {
			case err == nil:
				observability.RecordReconcile("found")
				return fill, nil
			case errors.Is(err, ErrOrderUnknown):
				observability.RecordReconcile("unknown")
				unknown = false
			default:
				observability.RecordReconcile("error")
				return Fill{}, err
			}
		}

		attemptCtx, cancelAttempt := context.WithTimeout(subCtx, o.submitTimeout)
		defer cancelAttempt()

		start := time.Now()
		fill, err := broker.Submit(attemptCtx, req)
		elapsed := time.Since(start).Seconds()
		switch {
		case err == nil:
			observability.RecordSubmit("ok", elapsed)
			return fill, nil
		case subCtx.Err() != nil:
			observability.RecordSubmit("cancelled", elapsed)
			return Fill{}, backoff.Permanent(subCtx.Err())
		case errors.Is(err, domain.ErrSubmitTimeout), errors.Is(err, context.DeadlineExceeded):
			observability.RecordSubmit("timeout", elapsed)
			unknown = true
			return Fill{}, &domain.SubmitTimeoutError{SourceTradeID: order.SourceTradeID}
		default:
			observability.RecordSubmit("error", elapsed)
			return Fill{}, err
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retryInitial
	b.MaxElapsedTime = o.retryMaxElapsed

	return backoff.RetryNotifyWithData(operation, backoff.WithContext(b, subCtx), func(err error, wait time.Duration) {
		observability.RecordSubmitRetry()
		log.WithError(err).WithField("retry_in", wait).Warn("submit attempt failed")
	})
}

// applyFill moves the order to the broker's outcome and updates risk state on fills.
func (o *Orchestrator) applyFill(ctx context.Context, f *follower, cfg *domain.CopyTradeConfig, order *domain.MirroredOrder, fill Fill, exit *risk.ExitSignal, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	var err error

	switch fill.Status {
	case FillRejected:
		reason := fill.Reason
		if reason == "" {
			reason = RejectBroker
		}
		if order.BrokerOrderID == "" {
			order.BrokerOrderID = fill.BrokerOrderID
		}
		return o.transition(ctx, f, order, domain.OrderRejected, reason, nil, log)

	case FillPending:
		if order.Status == domain.OrderPending {
			order.BrokerOrderID = fill.BrokerOrderID
			return o.transition(ctx, f, order, domain.OrderSubmitted, "", nil, log)
		}
		return order, nil
	}

	if order.Status == domain.OrderPending {
		order.BrokerOrderID = fill.BrokerOrderID
		if order, err = o.transition(ctx, f, order, domain.OrderSubmitted, "", nil, log); err != nil {
			return order, err
		}
	}
	price := fill.Price
	if order, err = o.transition(ctx, f, order, domain.OrderFilled, "", &price, log); err != nil {
		return order, err
	}

	now := o.now()
	var pnl decimal.Decimal
	var tr risk.Transition
	switch order.Side {
	case domain.SideBuy:
		f.governor.RecordFill(order.SourceTradeID, order.TokenAddress, order.Size, price, now)
	case domain.SideSell:
		fraction := decimal.NewFromInt(1)
		if exit != nil {
			fraction = exit.Fraction
		}
		pnl, tr = f.governor.RecordClose(order.TokenAddress, fraction, price, cfg.Risk, now)
		if exit != nil && exit.Reason == risk.ExitTakeProfit {
			f.governor.MarkProfitTaken(order.TokenAddress)
		}
	}

	if err := o.persistPosition(ctx, f, order.TokenAddress); err != nil {
		return order, err
	}
	if err := o.persistRisk(ctx, f); err != nil {
		return order, err
	}

	ev := o.orderEvent(notify.EventOrderFilled, order)
	ev.Attributes["price"] = price.String()
	if order.Side == domain.SideSell {
		ev.Attributes["pnl"] = pnl.String()
	}
	if exit != nil {
		ev.Reason = exit.Reason
	}
	o.notifier.Notify(ev)
	o.announceTransition(f, tr)

	log.WithFields(logrus.Fields{"size": order.Size.String(), "price": price.String()}).Info("order filled")
	return order, nil
}

// record inserts an order that ends without reaching the broker.
func (o *Orchestrator) record(ctx context.Context, f *follower, order *domain.MirroredOrder, status domain.OrderStatus, reason string, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	order.Status = status
	order.Reason = reason
	order.Size = decimal.Zero

	if err := o.orderStore.Insert(ctx, order); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			existing, getErr := o.orderStore.Get(ctx, order.SourceTradeID)
			if getErr != nil {
				return nil, fmt.Errorf("get order %s: %w", order.SourceTradeID, getErr)
			}
			return o.duplicate(ctx, f, existing, log)
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	o.finished(f, order, log)
	return order, nil
}

// transition applies a monotonic status change to a stored order.
func (o *Orchestrator) transition(ctx context.Context, f *follower, order *domain.MirroredOrder, status domain.OrderStatus, reason string, price *decimal.Decimal, log logrus.FieldLogger) (*domain.MirroredOrder, error) {
	updated, err := o.orderStore.UpdateStatus(ctx, order.SourceTradeID, storage.OrderUpdate{
		Status:        status,
		Reason:        reason,
		BrokerOrderID: order.BrokerOrderID,
		FillPrice:     price,
		UpdatedAt:     o.now().UnixMilli(),
	})
	if err != nil {
		return order, fmt.Errorf("order %s -> %s: %w", order.SourceTradeID, status, err)
	}
	o.finished(f, updated, log)
	return updated, nil
}

// finished records metrics and notifications for a status an order reached.
func (o *Orchestrator) finished(f *follower, order *domain.MirroredOrder, log logrus.FieldLogger) {
	observability.RecordOrderStatus(string(order.Status))
	f.count(order.Status)

	switch order.Status {
	case domain.OrderSkipped:
		observability.RecordOrderSkipped(order.Reason)
		log.WithField("reason", order.Reason).Info("trade skipped")
		o.notifier.Notify(o.orderEvent(notify.EventOrderSkipped, order))
	case domain.OrderRejected:
		log.WithField("reason", order.Reason).Warn("order rejected")
		o.notifier.Notify(o.orderEvent(notify.EventOrderRejected, order))
	}
}

func (o *Orchestrator) orderEvent(t notify.EventType, order *domain.MirroredOrder) notify.Event {
	ev := notify.NewEvent(t, o.now())
	ev.SessionID = order.SessionID
	ev.SourceTradeID = order.SourceTradeID
	ev.TokenAddress = order.TokenAddress
	ev.Reason = order.Reason
	ev.Attributes = map[string]string{
		"side": string(order.Side),
		"size": order.Size.String(),
	}
	return ev
}

// announceTransition notifies throttle and halt transitions.
func (o *Orchestrator) announceTransition(f *follower, tr risk.Transition) {
	if !tr.Changed() {
		return
	}
	var ev notify.Event
	switch tr.To {
	case domain.GovernorHalted:
		ev = notify.NewEvent(notify.EventRiskHalted, o.now())
		ev.Reason = f.governor.Snapshot().HaltReason
	case domain.GovernorThrottled:
		ev = notify.NewEvent(notify.EventRiskThrottled, o.now())
	default:
		return
	}
	ev.SessionID = f.sessionID
	ev.Attributes = map[string]string{"from": string(tr.From)}
	o.notifier.Notify(ev)
}

// evaluateExits reconciles acknowledged orders, then checks stop-loss and
// take-profit for each open position. Nothing exits while an emergency stop is in force.
func (o *Orchestrator) evaluateExits(ctx context.Context, f *follower) error {
	stored, err := o.configStore.GetLatest(ctx, f.sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := stored.WithDefaults()

	submitted, err := o.orderStore.ListByStatus(ctx, f.sessionID, domain.OrderSubmitted)
	if err != nil {
		return fmt.Errorf("list submitted orders: %w", err)
	}
	for _, order := range submitted {
		log := f.logger.WithField("source_trade_id", order.SourceTradeID)
		if _, err := o.reconcile(ctx, f, &cfg, order, log); err != nil {
			log.WithError(err).Warn("reconcile failed")
		}
	}

	if f.governor.Emergency() {
		return nil
	}
	broker, err := o.brokerFor(cfg.Mode)
	if err != nil {
		return err
	}

	for _, pos := range f.governor.Positions() {
		price, err := broker.Price(ctx, pos.TokenAddress)
		if err != nil {
			f.logger.WithError(err).WithField("token", pos.TokenAddress).Debug("no exit price")
			continue
		}
		signal, ok := risk.EvaluateExit(pos, price, cfg.Risk)
		if !ok {
			continue
		}
		if err := o.exit(ctx, f, &cfg, pos, signal); err != nil {
			return err
		}
	}
	return nil
}

// exit places the sell for a triggered stop-loss or take-profit.
// Each (position, reason) produces at most one exit order.
func (o *Orchestrator) exit(ctx context.Context, f *follower, cfg *domain.CopyTradeConfig, pos domain.Position, signal risk.ExitSignal) error {
	id := idhash.ComputeExitTradeID(pos.SourceTradeID, signal.Reason)
	log := f.logger.WithFields(logrus.Fields{
		"source_trade_id": id,
		"token":           pos.TokenAddress,
		"exit":            signal.Reason,
	})

	existing, err := o.orderStore.Get(ctx, id)
	if err == nil {
		if signal.Reason == risk.ExitTakeProfit && existing.Status == domain.OrderFilled {
			f.governor.MarkProfitTaken(pos.TokenAddress)
			return o.persistPosition(ctx, f, pos.TokenAddress)
		}
		log.WithField("status", existing.Status).Debug("exit already placed")
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("get exit order: %w", err)
	}

	now := o.now()
	order := &domain.MirroredOrder{
		SourceTradeID:  id,
		SessionID:      f.sessionID,
		FollowerWallet: cfg.FollowerWallet(),
		TargetWallet:   cfg.TargetWallet,
		TokenAddress:   pos.TokenAddress,
		Side:           domain.SideSell,
		Size:           pos.Size.Mul(signal.Fraction).Truncate(proration.Precision),
		Status:         domain.OrderPending,
		ConfigVersion:  cfg.Version,
		CreatedAt:      now.UnixMilli(),
		UpdatedAt:      now.UnixMilli(),
	}
	if err := o.orderStore.Insert(ctx, order); err != nil {
		return fmt.Errorf("insert exit order: %w", err)
	}
	observability.RecordOrderStatus(string(domain.OrderPending))

	ev := o.orderEvent(notify.EventPositionExit, order)
	ev.Reason = signal.Reason
	ev.Attributes["trigger_price"] = signal.Price.String()
	ev.Attributes["entry_price"] = pos.EntryPrice.String()
	o.notifier.Notify(ev)
	log.WithField("price", signal.Price.String()).Info("exit triggered")

	_, err = o.execute(ctx, f, cfg, order, &signal, log)
	return err
}

// exitFor rebuilds the exit signal of a recovered exit order, nil for mirrored trades.
func (o *Orchestrator) exitFor(f *follower, order *domain.MirroredOrder) *risk.ExitSignal {
	if order.Side != domain.SideSell {
		return nil
	}
	pos, ok := f.position(order.TokenAddress)
	if !ok {
		return nil
	}
	for _, reason := range []string{risk.ExitStopLoss, risk.ExitTakeProfit} {
		if idhash.ComputeExitTradeID(pos.SourceTradeID, reason) != order.SourceTradeID {
			continue
		}
		fraction := decimal.NewFromInt(1)
		if pos.Size.Sign() > 0 && order.Size.LessThan(pos.Size) {
			fraction = order.Size.Div(pos.Size)
		}
		return &risk.ExitSignal{
			TokenAddress:  pos.TokenAddress,
			SourceTradeID: pos.SourceTradeID,
			Reason:        reason,
			Fraction:      fraction,
		}
	}
	return nil
}

func (o *Orchestrator) dailyReset(ctx context.Context, f *follower) error {
	tr := f.governor.Reset(o.now(), tzOrUTC(f.timezone))
	if err := o.persistRisk(ctx, f); err != nil {
		return err
	}
	o.announceTransition(f, tr)
	return nil
}

func (o *Orchestrator) resume(ctx context.Context, f *follower) error {
	stored, err := o.configStore.GetLatest(ctx, f.sessionID)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := stored.WithDefaults()

	tr := f.governor.Resume(cfg.Risk, o.now())
	f.logger.WithField("state", tr.To).Info("emergency stop lifted")
	if err := o.persistRisk(ctx, f); err != nil {
		return err
	}
	o.announceTransition(f, tr)
	return nil
}

// persistRisk writes the governor snapshot for its trading day.
func (o *Orchestrator) persistRisk(ctx context.Context, f *follower) error {
	state := f.governor.Snapshot()
	if state.TradingDay == "" {
		day, err := schedule.TradingDay(o.now(), tzOrUTC(f.timezone))
		if err != nil {
			return err
		}
		state.TradingDay = day
	}
	if state.UpdatedAt == 0 {
		state.UpdatedAt = o.now().UnixMilli()
	}
	if err := o.riskStore.Upsert(ctx, &state); err != nil {
		return fmt.Errorf("persist risk state: %w", err)
	}
	return nil
}

// persistPosition mirrors the governor's position in token to the store.
func (o *Orchestrator) persistPosition(ctx context.Context, f *follower, token string) error {
	pos, ok := f.position(token)
	var err error
	if ok {
		err = o.positionStore.Upsert(ctx, f.sessionID, &pos)
	} else {
		err = o.positionStore.Delete(ctx, f.sessionID, token)
	}
	if err != nil {
		return fmt.Errorf("persist position %s: %w", token, err)
	}
	return nil
}

func (o *Orchestrator) brokerFor(mode domain.TradingMode) (Broker, error) {
	if mode == domain.ModeLive {
		if o.liveBroker == nil {
			return nil, errors.New("live mode without a live broker")
		}
		return o.liveBroker, nil
	}
	return o.paperBroker, nil
}

// observePrice feeds target execution prices to brokers that track them.
func (o *Orchestrator) observePrice(token string, price decimal.Decimal) {
	for _, b := range []Broker{o.paperBroker, o.liveBroker} {
		if obs, ok := b.(PriceObserver); ok {
			obs.ObservePrice(token, price)
		}
	}
}
