// Package book models one side of a depth-of-book snapshot and the
// handful of statistics the wall detector needs from it: a median
// quantity over the top levels, and tick distance from the best price.
package book

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies which side of the book a level or wall sits on.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	if s == SideBid {
		return "BID"
	}
	return "ASK"
}

// PriceLevel is one resting price/quantity pair. Quantity is in lots and
// is never negative.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity int64
}

// Snapshot is an immutable view of top-N bid/ask levels for one
// instrument, received at a point in (monotonic) time. Bids are ordered
// descending by price, asks ascending; both conventions make "best" the
// first element of each slice.
type Snapshot struct {
	Symbol       string
	InstrumentID string
	TickSize     decimal.Decimal
	Bids         []PriceLevel
	Asks         []PriceLevel
	Depth        int
	ReceivedAt   time.Time
}

// Validate checks the invariants spec.md §3 requires of every snapshot:
// no duplicate prices per side, best bid below best ask, depth bounds
// respected, and prices aligned to the tick size. It does not sort —
// callers (transport adapters) are expected to hand levels in book
// order already, matching spec.md's "full snapshot, not incremental
// delta" assumption.
func (s *Snapshot) Validate() error {
	if err := validateSide(s.Bids, true, s.TickSize, s.Depth); err != nil {
		return fmt.Errorf("bids: %w", err)
	}
	if err := validateSide(s.Asks, false, s.TickSize, s.Depth); err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	if len(s.Bids) > 0 && len(s.Asks) > 0 && !s.Bids[0].Price.LessThan(s.Asks[0].Price) {
		return fmt.Errorf("best bid %s is not below best ask %s", s.Bids[0].Price, s.Asks[0].Price)
	}
	return nil
}

func validateSide(levels []PriceLevel, descending bool, tick decimal.Decimal, depth int) error {
	if depth > 0 && len(levels) > depth {
		return fmt.Errorf("%d levels exceeds depth %d", len(levels), depth)
	}
	seen := make(map[string]struct{}, len(levels))
	for i, lvl := range levels {
		if lvl.Quantity < 0 {
			return fmt.Errorf("negative quantity %d at %s", lvl.Quantity, lvl.Price)
		}
		key := lvl.Price.String()
		if _, dup := seen[key]; dup {
			return fmt.Errorf("duplicate price %s", lvl.Price)
		}
		seen[key] = struct{}{}
		if !tick.IsZero() && !lvl.Price.Div(tick).IsInteger() {
			return fmt.Errorf("price %s is not a multiple of tick size %s", lvl.Price, tick)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1].Price
		if descending && !prev.GreaterThan(lvl.Price) {
			return fmt.Errorf("bids not strictly descending at index %d", i)
		}
		if !descending && !lvl.Price.GreaterThan(prev) {
			return fmt.Errorf("asks not strictly ascending at index %d", i)
		}
	}
	return nil
}

func (s *Snapshot) levels(side Side) []PriceLevel {
	if side == SideBid {
		return s.Bids
	}
	return s.Asks
}

// BestPrice returns the best price on side, or a zero decimal and false
// if that side is empty.
func (s *Snapshot) BestPrice(side Side) (decimal.Decimal, bool) {
	lv := s.levels(side)
	if len(lv) == 0 {
		return decimal.Zero, false
	}
	return lv[0].Price, true
}

// FindLevel returns the resting quantity at price on side, or zero if no
// level exists there.
func (s *Snapshot) FindLevel(side Side, price decimal.Decimal) int64 {
	for _, lvl := range s.levels(side) {
		if lvl.Price.Equal(price) {
			return lvl.Quantity
		}
	}
	return 0
}

// MedianQuantity returns the median quantity of the top topN levels on
// side. With fewer than two levels present it returns the only present
// quantity, or zero if the side is empty.
func (s *Snapshot) MedianQuantity(side Side, topN int) int64 {
	lv := s.levels(side)
	if len(lv) > topN {
		lv = lv[:topN]
	}
	if len(lv) == 0 {
		return 0
	}
	if len(lv) == 1 {
		return lv[0].Quantity
	}
	qtys := make([]int64, len(lv))
	for i, l := range lv {
		qtys[i] = l.Quantity
	}
	sort.Slice(qtys, func(i, j int) bool { return qtys[i] < qtys[j] })
	mid := len(qtys) / 2
	if len(qtys)%2 == 1 {
		return qtys[mid]
	}
	return (qtys[mid-1] + qtys[mid]) / 2
}

// DistanceTicks returns the number of ticks from the best price on side
// to price. For bids the direction is downward (a lower price is a
// positive distance); for asks it is upward. It returns false if price
// sits on the wrong side of best (i.e. would represent a negative
// distance), or if the side is empty.
func (s *Snapshot) DistanceTicks(side Side, price decimal.Decimal, tick decimal.Decimal) (int, bool) {
	best, ok := s.BestPrice(side)
	if !ok || tick.IsZero() {
		return 0, false
	}
	var delta decimal.Decimal
	if side == SideBid {
		delta = best.Sub(price)
	} else {
		delta = price.Sub(best)
	}
	if delta.IsNegative() {
		return 0, false
	}
	ticks := delta.Div(tick)
	if !ticks.IsInteger() {
		ticks = ticks.Round(0)
	}
	return int(ticks.IntPart()), true
}
