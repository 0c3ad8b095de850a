// Package tradewindow keeps a rolling, time-bounded record of executed
// trade volume per price so the wall detector can cross-reference a
// shrinking resting level against real trade flow. It mirrors
// original_source's collections.deque-based trade buffer, trimmed on
// every insert and every query.
package tradewindow

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeSide identifies the aggressor side of a print.
type TradeSide int

const (
	Buyer TradeSide = iota
	Seller
)

// Trade is one executed print.
type Trade struct {
	Symbol    string
	Price     decimal.Decimal
	Quantity  int64
	Side      TradeSide
	Timestamp time.Time
}

type entry struct {
	at       time.Time
	price    decimal.Decimal
	quantity int64
}

// Window is a deque of recent trades, trimmed to a configured horizon on
// every insert and query. It is not safe for concurrent use — each
// SymbolState (and therefore each Window) is owned by exactly one
// supervisor goroutine.
type Window struct {
	horizon time.Duration
	entries []entry
}

// New returns a Window that drops trades older than horizon relative to
// the `now` supplied on each call.
func New(horizon time.Duration) *Window {
	return &Window{horizon: horizon}
}

// Record appends a trade, then trims anything now outside the horizon.
func (w *Window) Record(t Trade) {
	w.entries = append(w.entries, entry{at: t.Timestamp, price: t.Price, quantity: t.Quantity})
	w.trim(t.Timestamp)
}

// VolumeAtPrice sums quantity traded at exactly price within the last
// windowSeconds relative to now.
func (w *Window) VolumeAtPrice(price decimal.Decimal, windowSeconds float64, now time.Time) int64 {
	w.trim(now)
	cutoff := now.Add(-durationFromSeconds(windowSeconds))
	var total int64
	for _, e := range w.entries {
		if e.at.Before(cutoff) {
			continue
		}
		if e.price.Equal(price) {
			total += e.quantity
		}
	}
	return total
}

// AnyVolumeInWindow sums all quantity traded (any price) within the last
// windowSeconds relative to now — used for "is the market active" style
// heuristics.
func (w *Window) AnyVolumeInWindow(windowSeconds float64, now time.Time) int64 {
	w.trim(now)
	cutoff := now.Add(-durationFromSeconds(windowSeconds))
	var total int64
	for _, e := range w.entries {
		if e.at.Before(cutoff) {
			continue
		}
		total += e.quantity
	}
	return total
}

func (w *Window) trim(now time.Time) {
	cutoff := now.Add(-w.horizon)
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	w.entries = append(w.entries[:0], w.entries[i:]...)
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
