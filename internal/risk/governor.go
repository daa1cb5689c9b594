// Package risk enforces per-follower loss limits, position caps and emergency halts.
package risk

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-copytrade-lab/internal/domain"
	"solana-copytrade-lab/internal/observability"
	"solana-copytrade-lab/internal/schedule"
)

// Halt reasons stored in RiskState.HaltReason.
const (
	HaltDailyLossLimit = "daily-loss-limit"
	HaltEmergencyStop  = "emergency-stop"
)

// Admission is the result of a pre-trade risk check.
type Admission struct {
	Allowed   bool
	Throttled bool   // allowed, but the loss limit is near
	Reason    string // skip reason when not allowed
}

// Transition is a governor state change.
type Transition struct {
	From domain.GovernorState
	To   domain.GovernorState
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Governor is the risk state machine of one follower.
//
// Admit, RecordFill, RecordClose and Reset are called only from the follower's
// worker goroutine. EmergencyStop and the snapshot getters may be called from
// any goroutine. The mutex guards memory only and is never held across I/O.
type Governor struct {
	followerID string
	logger     logrus.FieldLogger

	mu        sync.Mutex
	state     domain.RiskState
	positions map[string]*domain.Position // keyed by token address
	emergency bool
}

// NewGovernor creates an ACTIVE governor with no trading day assigned yet.
func NewGovernor(followerID string, logger logrus.FieldLogger) *Governor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Governor{
		followerID: followerID,
		logger:     logger.WithFields(logrus.Fields{"component": "risk", "follower": followerID}),
		state: domain.RiskState{
			FollowerID:        followerID,
			RealizedLossToday: decimal.Zero,
			State:             domain.GovernorActive,
		},
		positions: make(map[string]*domain.Position),
	}
}

// Restore loads persisted state and open positions, e.g. after a restart.
// A persisted emergency halt stays in force.
func (g *Governor) Restore(state *domain.RiskState, positions []*domain.Position) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if state != nil {
		g.state = *state
		g.state.FollowerID = g.followerID
		g.emergency = state.State == domain.GovernorHalted && state.HaltReason == HaltEmergencyStop
	}
	g.positions = make(map[string]*domain.Position, len(positions))
	for _, p := range positions {
		cp := *p
		g.positions[p.TokenAddress] = &cp
	}
	g.state.OpenPositionCount = len(g.positions)
}

// Admit checks whether a new mirrored order may be placed.
// It first rolls the trading day over if now falls on a new local date.
func (g *Governor) Admit(now time.Time, side domain.OrderSide, token string, cfg domain.RiskConfig, timezone string) (Admission, Transition) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tr := g.rolloverLocked(now, timezone)

	// The limit may have been lowered by a newer config version.
	before := g.state.State
	g.evaluateLocked(cfg)
	if g.state.State != before {
		g.state.UpdatedAt = now.UnixMilli()
		g.logTransitionLocked(Transition{From: before, To: g.state.State})
	}
	tr.To = g.state.State

	if g.emergency {
		return Admission{Reason: domain.SkipReasonEmergencyStop}, tr
	}
	if g.state.State == domain.GovernorHalted {
		return Admission{Reason: domain.SkipReasonRiskHalted}, tr
	}

	switch side {
	case domain.SideBuy:
		_, holding := g.positions[token]
		if !holding && cfg.MaxPositions > 0 && len(g.positions) >= cfg.MaxPositions {
			return Admission{Reason: domain.SkipReasonMaxPositions}, tr
		}
	case domain.SideSell:
		if _, holding := g.positions[token]; !holding {
			return Admission{Reason: domain.SkipReasonNoPosition}, tr
		}
	}

	return Admission{Allowed: true, Throttled: g.state.State == domain.GovernorThrottled}, tr
}

// RecordFill opens or grows the position for token after a filled buy.
// size is SOL spent and price is SOL per token.
func (g *Governor) RecordFill(sourceTradeID, token string, size, price decimal.Decimal, at time.Time) {
	if price.Sign() <= 0 || size.Sign() <= 0 {
		g.logger.WithField("token", token).Warn("ignoring fill without positive size and price")
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	qty := size.Div(price)
	p, ok := g.positions[token]
	if !ok {
		g.positions[token] = &domain.Position{
			SourceTradeID: sourceTradeID,
			TokenAddress:  token,
			Size:          size,
			Quantity:      qty,
			EntryPrice:    price,
			OpenedAt:      at.UnixMilli(),
		}
	} else {
		p.Size = p.Size.Add(size)
		p.Quantity = p.Quantity.Add(qty)
		p.EntryPrice = p.Size.Div(p.Quantity)
	}

	g.state.OpenPositionCount = len(g.positions)
	g.state.UpdatedAt = at.UnixMilli()
	observability.SetOpenPositions(g.followerID, len(g.positions))
}

// RecordClose sells fraction (0,1] of the position in token at price.
// Realized losses accumulate into RealizedLossToday; gains do not offset them.
// The position is removed when the whole quantity is sold.
func (g *Governor) RecordClose(token string, fraction, price decimal.Decimal, cfg domain.RiskConfig, at time.Time) (pnl decimal.Decimal, tr Transition) {
	g.mu.Lock()
	defer g.mu.Unlock()

	tr = Transition{From: g.state.State, To: g.state.State}

	p, ok := g.positions[token]
	if !ok {
		return decimal.Zero, tr
	}
	if fraction.GreaterThan(decimal.NewFromInt(1)) || fraction.Sign() <= 0 {
		fraction = decimal.NewFromInt(1)
	}

	soldQty := p.Quantity.Mul(fraction)
	cost := p.Size.Mul(fraction)
	pnl = soldQty.Mul(price).Sub(cost)

	if fraction.Equal(decimal.NewFromInt(1)) {
		delete(g.positions, token)
	} else {
		p.Quantity = p.Quantity.Sub(soldQty)
		p.Size = p.Size.Sub(cost)
	}

	if pnl.IsNegative() {
		g.state.RealizedLossToday = g.state.RealizedLossToday.Add(pnl.Neg())
	}
	g.state.OpenPositionCount = len(g.positions)
	g.state.UpdatedAt = at.UnixMilli()
	observability.SetOpenPositions(g.followerID, len(g.positions))

	g.evaluateLocked(cfg)
	tr.To = g.state.State
	if tr.Changed() {
		g.logTransitionLocked(tr)
	}
	return pnl, tr
}

// MarkProfitTaken flags a position so take-profit fires only once.
func (g *Governor) MarkProfitTaken(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.positions[token]; ok {
		p.ProfitTaken = true
	}
}

// EmergencyStop halts the follower immediately. Open positions are left untouched.
// Safe to call from any goroutine; it survives daily resets until Resume.
func (g *Governor) EmergencyStop(at time.Time) Transition {
	g.mu.Lock()
	defer g.mu.Unlock()

	tr := Transition{From: g.state.State, To: domain.GovernorHalted}
	g.emergency = true
	g.state.State = domain.GovernorHalted
	g.state.HaltReason = HaltEmergencyStop
	g.state.UpdatedAt = at.UnixMilli()
	if tr.Changed() {
		g.logTransitionLocked(tr)
	}
	return tr
}

// Resume lifts an emergency stop. A loss-limit halt for the current day stays in force.
func (g *Governor) Resume(cfg domain.RiskConfig, at time.Time) Transition {
	g.mu.Lock()
	defer g.mu.Unlock()

	tr := Transition{From: g.state.State}
	g.emergency = false
	g.state.State = domain.GovernorActive
	g.state.HaltReason = ""
	g.evaluateLocked(cfg)
	g.state.UpdatedAt = at.UnixMilli()
	tr.To = g.state.State
	if tr.Changed() {
		g.logTransitionLocked(tr)
	}
	return tr
}

// Reset starts a new trading day for now in timezone, clearing the loss tally.
// Resetting twice on the same day is a no-op.
func (g *Governor) Reset(now time.Time, timezone string) Transition {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.rolloverLocked(now, timezone)
}

// Snapshot returns a copy of the current risk state.
func (g *Governor) Snapshot() domain.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.state
}

// Positions returns copies of the open positions ordered by open time.
func (g *Governor) Positions() []domain.Position {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]domain.Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, *p)
	}
	sortPositions(out)
	return out
}

// Emergency reports whether an emergency stop is in force.
func (g *Governor) Emergency() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.emergency
}

// rolloverLocked resets daily counters when now is on a new local date.
func (g *Governor) rolloverLocked(now time.Time, timezone string) Transition {
	tr := Transition{From: g.state.State, To: g.state.State}

	day, err := schedule.TradingDay(now, timezone)
	if err != nil {
		g.logger.WithError(err).Warn("unknown timezone, using UTC trading day")
		day = now.UTC().Format("2006-01-02")
	}
	if day == g.state.TradingDay {
		return tr
	}

	prevDay := g.state.TradingDay
	g.state.TradingDay = day
	g.state.RealizedLossToday = decimal.Zero
	g.state.UpdatedAt = now.UnixMilli()
	if g.emergency {
		g.state.State = domain.GovernorHalted
		g.state.HaltReason = HaltEmergencyStop
	} else {
		g.state.State = domain.GovernorActive
		g.state.HaltReason = ""
	}

	tr.To = g.state.State
	if prevDay != "" {
		g.logger.WithFields(logrus.Fields{"from_day": prevDay, "to_day": day}).Info("trading day reset")
	}
	if tr.Changed() {
		g.logTransitionLocked(tr)
	}
	return tr
}

// evaluateLocked applies the loss thresholds. HALTED never recovers within a day.
func (g *Governor) evaluateLocked(cfg domain.RiskConfig) {
	if g.state.State == domain.GovernorHalted || cfg.DailyLossLimit.Sign() <= 0 {
		return
	}

	loss := g.state.RealizedLossToday
	if loss.GreaterThanOrEqual(cfg.DailyLossLimit) {
		g.state.State = domain.GovernorHalted
		g.state.HaltReason = HaltDailyLossLimit
		return
	}

	threshold := cfg.WarningThreshold
	if threshold.IsZero() {
		threshold = domain.DefaultWarningThreshold
	}
	if loss.GreaterThanOrEqual(cfg.DailyLossLimit.Mul(threshold)) {
		g.state.State = domain.GovernorThrottled
	}
}

func (g *Governor) logTransitionLocked(tr Transition) {
	observability.RecordGovernorTransition(string(tr.To))
	g.logger.WithFields(logrus.Fields{
		"from":        tr.From,
		"to":          tr.To,
		"loss_today":  g.state.RealizedLossToday.String(),
		"halt_reason": g.state.HaltReason,
	}).Warn("risk state changed")
}
