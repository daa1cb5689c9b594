// Package schedule decides whether copy trading is permitted at a given instant.
package schedule

import (
	"fmt"
	"time"

	"solana-copytrade-lab/internal/domain"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Validate rejects schedules the gate cannot evaluate.
// Windows crossing midnight (DailyEnd < DailyStart) are a configuration error.
func Validate(s domain.Schedule) error {
	if _, err := loadLocation(s.Timezone); err != nil {
		return &domain.ConfigurationError{Field: "schedule.timezone", Reason: err.Error()}
	}

	start, err := time.Parse(dateLayout, s.StartDate)
	if err != nil {
		return &domain.ConfigurationError{Field: "schedule.start_date", Reason: "expected YYYY-MM-DD"}
	}
	if s.EndDate != nil {
		end, err := time.Parse(dateLayout, *s.EndDate)
		if err != nil {
			return &domain.ConfigurationError{Field: "schedule.end_date", Reason: "expected YYYY-MM-DD"}
		}
		if end.Before(start) {
			return &domain.ConfigurationError{Field: "schedule.end_date", Reason: "end date before start date"}
		}
	}

	// An inverted window is rejected whenever both times are given, even if unused.
	if !s.RepeatDaily && (s.DailyStart == "" || s.DailyEnd == "") {
		return nil
	}

	dailyStart, err := parseClock(s.DailyStart)
	if err != nil {
		return &domain.ConfigurationError{Field: "schedule.daily_start", Reason: err.Error()}
	}
	dailyEnd, err := parseClock(s.DailyEnd)
	if err != nil {
		return &domain.ConfigurationError{Field: "schedule.daily_end", Reason: err.Error()}
	}
	if dailyEnd < dailyStart {
		return &domain.ConfigurationError{
			Field:  "schedule.daily_end",
			Reason: fmt.Sprintf("daily window %s-%s crosses midnight", s.DailyStart, s.DailyEnd),
		}
	}

	return nil
}

// Gate evaluates schedules. It is stateless apart from the clock.
type Gate struct {
	now func() time.Time
}

// NewGate creates a gate using the wall clock.
func NewGate() *Gate {
	return &Gate{now: time.Now}
}

// NewGateWithClock creates a gate with an injected clock (tests).
func NewGateWithClock(now func() time.Time) *Gate {
	return &Gate{now: now}
}

// TradeableNow evaluates the schedule at the gate's current time.
func (g *Gate) TradeableNow(s domain.Schedule) (bool, error) {
	return Tradeable(g.now(), s)
}

// Tradeable reports whether now falls inside the schedule.
// Dates and the daily window are inclusive and evaluated in the schedule's timezone.
func Tradeable(now time.Time, s domain.Schedule) (bool, error) {
	if err := Validate(s); err != nil {
		return false, err
	}

	loc, _ := loadLocation(s.Timezone)
	local := now.In(loc)
	today := local.Format(dateLayout)

	// YYYY-MM-DD compares correctly as a string.
	if today < s.StartDate {
		return false, nil
	}
	if s.EndDate != nil && today > *s.EndDate {
		return false, nil
	}

	if !s.RepeatDaily {
		return true, nil
	}

	dailyStart, _ := parseClock(s.DailyStart)
	dailyEnd, _ := parseClock(s.DailyEnd)
	minuteOfDay := local.Hour()*60 + local.Minute()

	return minuteOfDay >= dailyStart && minuteOfDay <= dailyEnd, nil
}

// TradingDay returns the YYYY-MM-DD date of t in the named timezone.
func TradingDay(t time.Time, timezone string) (string, error) {
	loc, err := loadLocation(timezone)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(dateLayout), nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

// parseClock returns minutes since midnight for an HH:MM string.
func parseClock(v string) (int, error) {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		return 0, fmt.Errorf("expected HH:MM, got %q", v)
	}
	return t.Hour()*60 + t.Minute(), nil
}
