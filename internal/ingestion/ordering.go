package ingestion

import (
	"sort"

	"solana-copytrade-lab/internal/domain"
)

// Drop reasons reported when an event is not applied.
const (
	DropBehindCursor = "behind-cursor"
	DropDuplicate    = "duplicate"
	DropLate         = "late"
	DropMalformed    = "malformed"
)

// gap is a cursor discontinuity found while draining.
type gap struct {
	err   *domain.FeedGapError
	token string // token of the first event after the gap
}

// sequencer restores cursor order for one feed.
//
// Events are buffered by cursor and released while contiguous with the
// committed cursor. An event older than the lateness window relative to the
// newest timestamp seen is dropped. A missing cursor is declared a gap once the
// event after it has itself aged past the lateness window.
type sequencer[T any] struct {
	feed      string
	cursorOf  func(T) int64
	timeOf    func(T) int64
	tokenOf   func(T) string
	lateness  int64 // ms
	committed int64
	newestTs  int64
	highest   int64
	pending   map[int64]T
	skipped   map[int64]struct{}
}

func newSequencer[T any](feed string, lateness int64, cursorOf, timeOf func(T) int64, tokenOf func(T) string) *sequencer[T] {
	return &sequencer[T]{
		feed:     feed,
		cursorOf: cursorOf,
		timeOf:   timeOf,
		tokenOf:  tokenOf,
		lateness: lateness,
		pending:  make(map[int64]T),
		skipped:  make(map[int64]struct{}),
	}
}

// reset sets the committed cursor, typically from persisted progress.
func (s *sequencer[T]) reset(committed int64) {
	s.committed = committed
	if committed > s.highest {
		s.highest = committed
	}
}

// push buffers an event. Returns a drop reason if it was not accepted.
func (s *sequencer[T]) push(ev T) string {
	c := s.cursorOf(ev)
	if c <= s.committed {
		return DropBehindCursor
	}
	if _, ok := s.pending[c]; ok {
		return DropDuplicate
	}
	if _, ok := s.skipped[c]; ok {
		return DropDuplicate
	}

	if c > s.highest {
		s.highest = c
	}

	ts := s.timeOf(ev)
	if s.newestTs-ts > s.lateness {
		// The cursor slot is consumed so the drop is not mistaken for a gap.
		s.skipped[c] = struct{}{}
		return DropLate
	}
	if ts > s.newestTs {
		s.newestTs = ts
	}

	s.pending[c] = ev
	return ""
}

// drain releases contiguous events in cursor order.
// With force set, every missing cursor before a buffered event is declared a gap.
func (s *sequencer[T]) drain(force bool) ([]T, []gap) {
	var out []T
	var gaps []gap

	for {
		next := s.committed + 1
		if ev, ok := s.pending[next]; ok {
			out = append(out, ev)
			delete(s.pending, next)
			s.committed = next
			continue
		}
		if _, ok := s.skipped[next]; ok {
			delete(s.skipped, next)
			s.committed = next
			continue
		}
		if len(s.pending) == 0 {
			break
		}

		first := s.firstPending()
		ev := s.pending[first]
		if !force && s.newestTs-s.timeOf(ev) < s.lateness {
			break
		}

		gaps = append(gaps, gap{
			err:   &domain.FeedGapError{Feed: s.feed, Expected: next, Got: first},
			token: s.tokenOf(ev),
		})
		for c := range s.skipped {
			if c < first {
				delete(s.skipped, c)
			}
		}
		s.committed = first - 1
	}

	return out, gaps
}

// requeue puts released events back after a failed store so nothing is lost.
func (s *sequencer[T]) requeue(events []T) {
	for _, ev := range events {
		c := s.cursorOf(ev)
		s.pending[c] = ev
		if c-1 < s.committed {
			s.committed = c - 1
		}
	}
}

func (s *sequencer[T]) firstPending() int64 {
	keys := make([]int64, 0, len(s.pending))
	for c := range s.pending {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys[0]
}

func (s *sequencer[T]) buffered() int {
	return len(s.pending)
}

func newLaunchSequencer(lateness int64) *sequencer[*domain.TokenLaunch] {
	return newSequencer(FeedLaunches, lateness,
		func(l *domain.TokenLaunch) int64 { return l.Cursor },
		func(l *domain.TokenLaunch) int64 { return l.LaunchTimestamp },
		func(l *domain.TokenLaunch) string { return l.Address },
	)
}

func newBuySequencer(lateness int64) *sequencer[*domain.BuyEvent] {
	return newSequencer(FeedBuys, lateness,
		func(b *domain.BuyEvent) int64 { return b.Cursor },
		func(b *domain.BuyEvent) int64 { return b.Timestamp },
		func(b *domain.BuyEvent) string { return b.TokenAddress },
	)
}
