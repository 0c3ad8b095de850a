// Package walldetect implements the wall lifecycle state machine: given
// a sequence of book snapshots and trades for one symbol, it tracks
// candidate resting levels through CANDIDATE -> CONFIRMED -> CONSUMING
// (or LOST) and emits the corresponding internal/events events. It never
// reads the wall clock itself — every entry point takes `now` as a
// parameter, matching internal/clock's seam so tests drive time without
// sleeping.
package walldetect

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/book"
	"github.com/wallwatch/wallwatch/internal/events"
	"github.com/wallwatch/wallwatch/internal/tradewindow"
	"github.com/wallwatch/wallwatch/internal/wallerr"
)

// WallState is the lifecycle state of one tracked (side, price) level.
type WallState int

const (
	StateCandidate WallState = iota
	StateConfirmed
	StateConsuming
)

func (s WallState) String() string {
	switch s {
	case StateCandidate:
		return "CANDIDATE"
	case StateConfirmed:
		return "CONFIRMED"
	case StateConsuming:
		return "CONSUMING"
	default:
		return "UNKNOWN"
	}
}

// WallKey identifies one tracked level. Price is canonicalized to its
// decimal string form since decimal.Decimal is not a valid map key
// comparison (two equal values may hold distinct *big.Int pointers).
type WallKey struct {
	Side      book.Side
	PriceText string
}

func keyFor(side book.Side, price decimal.Decimal) WallKey {
	return WallKey{Side: side, PriceText: price.String()}
}

type sizePoint struct {
	at  time.Time
	qty int64
}

// WallCandidate tracks one level through its lifecycle.
type WallCandidate struct {
	CorrelationID  uuid.UUID
	Side           book.Side
	Price          decimal.Decimal
	State          WallState
	QuantityInitial int64
	QuantityCurrent int64
	FirstSeenAt    time.Time
	StateEnteredAt time.Time
	LastSeenAt     time.Time
	DistanceAtFirstSeen int

	sizeHistory []sizePoint
}

func (c *WallCandidate) recordSize(now time.Time, qty int64, window time.Duration) {
	c.sizeHistory = append(c.sizeHistory, sizePoint{at: now, qty: qty})
	cutoff := now.Add(-window)
	i := 0
	for i < len(c.sizeHistory) && c.sizeHistory[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		c.sizeHistory = append(c.sizeHistory[:0], c.sizeHistory[i:]...)
	}
}

func (c *WallCandidate) maxSizeInWindow() int64 {
	var m int64
	for _, p := range c.sizeHistory {
		if p.qty > m {
			m = p.qty
		}
	}
	return m
}

// SymbolState holds per-symbol detector state that must survive
// reconnects: tracked candidates, the last validated snapshot (for
// teleport detection), recent trades, and per-kind cooldown timestamps.
type SymbolState struct {
	Symbol string
	Config DetectorConfig

	LatestBook *book.Snapshot
	Trades     *tradewindow.Window

	candidates map[WallKey]*WallCandidate
	cooldowns  map[string]time.Time // key: kind|side|price
}

// NewSymbolState constructs empty detector state for one symbol.
func NewSymbolState(symbol string, cfg DetectorConfig) *SymbolState {
	window := time.Duration(cfg.ConsumeWindowSeconds*float64(time.Second)) + time.Minute
	return &SymbolState{
		Symbol:     symbol,
		Config:     cfg,
		Trades:     tradewindow.New(window),
		candidates: make(map[WallKey]*WallCandidate),
		cooldowns:  make(map[string]time.Time),
	}
}

// Candidates returns the currently tracked walls, for introspection and
// tests. Callers must not mutate the returned map.
func (st *SymbolState) Candidates() map[WallKey]*WallCandidate {
	return st.candidates
}

func (st *SymbolState) cooldownKey(kind events.Kind, side book.Side, price decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s", kind, side, price.String())
}

// allow reports whether an event of kind for (side, price) may fire at
// now, and if so records now as the last emission time for that key.
func (st *SymbolState) allow(kind events.Kind, side book.Side, price decimal.Decimal, now time.Time) bool {
	cd := st.Config.cooldownFor(kind.String())
	key := st.cooldownKey(kind, side, price)
	if cd > 0 {
		if last, ok := st.cooldowns[key]; ok {
			if now.Sub(last) < durationFromSeconds(cd) {
				return false
			}
		}
	}
	st.cooldowns[key] = now
	return true
}

func durationFromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Advance feeds one validated book snapshot through the state machine
// and returns the events it produced. On an invariant violation
// (negative quantity, crossed book, off-tick price) the frame is
// dropped and state is left untouched, per spec.md §4.3's
// resynchronize-on-next-valid-frame behavior.
func Advance(st *SymbolState, snap *book.Snapshot, now time.Time) ([]events.Event, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", wallerr.ErrDetectorLogic, err)
	}

	prev := st.LatestBook
	cfg := st.Config
	var out []events.Event

	for _, side := range []book.Side{book.SideBid, book.SideAsk} {
		if teleported(prev, snap, side, cfg) {
			for key := range st.candidates {
				if key.Side == side {
					delete(st.candidates, key)
				}
			}
		}
	}

	st.LatestBook = snap

	// Update or retire existing candidates, in deterministic order.
	keys := make([]WallKey, 0, len(st.candidates))
	for k := range st.candidates {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Side != keys[j].Side {
			return keys[i].Side < keys[j].Side
		}
		return keys[i].PriceText < keys[j].PriceText
	})

	medians := map[book.Side]int64{
		book.SideBid: snap.MedianQuantity(book.SideBid, cfg.TopNLevels),
		book.SideAsk: snap.MedianQuantity(book.SideAsk, cfg.TopNLevels),
	}

	for _, key := range keys {
		cand := st.candidates[key]
		qty := snap.FindLevel(key.Side, cand.Price)
		if qty == 0 {
			if cand.State == StateConfirmed || cand.State == StateConsuming {
				age := now.Sub(cand.FirstSeenAt).Seconds()
				if st.allow(events.KindLost, key.Side, cand.Price, now) {
					out = append(out, events.NewLost(st.Symbol, cand.CorrelationID, now, key.Side, cand.Price, cand.QuantityCurrent, age, cand.State.String()))
				}
			}
			delete(st.candidates, key)
			continue
		}

		cand.QuantityCurrent = qty
		cand.LastSeenAt = now
		cand.recordSize(now, qty, durationFromSeconds(cfg.ConsumeWindowSeconds))

		if cand.State == StateCandidate {
			dist, ok := snap.DistanceTicks(key.Side, cand.Price, snap.TickSize)
			dwellOK := now.Sub(cand.StateEnteredAt).Seconds() >= cfg.ConfirmDwellSeconds
			distOK := ok && dist <= cfg.ConfirmMaxDistanceTicks
			shrinkFloor := cfg.CandidateRatioToMedian * float64(medians[key.Side]) * (1 - cfg.ConfirmShrinkTolerance)
			sizeOK := medians[key.Side] == 0 || float64(qty) >= shrinkFloor
			if dwellOK && distOK && sizeOK {
				cand.State = StateConfirmed
				cand.StateEnteredAt = now
				if st.allow(events.KindConfirmed, key.Side, cand.Price, now) {
					out = append(out, events.NewConfirmed(st.Symbol, cand.CorrelationID, now, key.Side, cand.Price, qty, now.Sub(cand.FirstSeenAt).Seconds()))
				}
			}
		}

		if cand.State == StateConfirmed || cand.State == StateConsuming {
			qref := cand.maxSizeInWindow()
			if qref > 0 {
				drop := float64(qref-qty) / float64(qref)
				executed := st.Trades.VolumeAtPrice(cand.Price, cfg.ConsumeWindowSeconds, now)
				if drop >= cfg.ConsumeDropPct && executed >= cfg.MinExecConfirm {
					if cand.State != StateConsuming {
						cand.State = StateConsuming
						cand.StateEnteredAt = now
					}
					if st.allow(events.KindConsuming, key.Side, cand.Price, now) {
						out = append(out, events.NewConsuming(st.Symbol, cand.CorrelationID, now, key.Side, cand.Price, qref, qty, drop, executed))
					}
				}
			}
		}
	}

	// Detect newly-qualifying candidates, ordered by descending quantity
	// so ties resolve in a stable, size-ranked order.
	type fresh struct {
		side  book.Side
		level book.PriceLevel
		dist  int
	}
	var freshList []fresh
	for _, side := range []book.Side{book.SideBid, book.SideAsk} {
		median := medians[side]
		for _, lvl := range levelsOf(snap, side) {
			k := keyFor(side, lvl.Price)
			if _, tracked := st.candidates[k]; tracked {
				continue
			}
			dist, ok := snap.DistanceTicks(side, lvl.Price, snap.TickSize)
			if !ok || dist > cfg.CandidateMaxDistanceTicks {
				continue
			}
			ratioOK := median == 0 || float64(lvl.Quantity) >= cfg.CandidateRatioToMedian*float64(median)
			absOK := lvl.Quantity >= cfg.AbsQtyThreshold
			if ratioOK && absOK {
				freshList = append(freshList, fresh{side: side, level: lvl, dist: dist})
			}
		}
	}
	sort.SliceStable(freshList, func(i, j int) bool { return freshList[i].level.Quantity > freshList[j].level.Quantity })

	for _, f := range freshList {
		k := keyFor(f.side, f.level.Price)
		cand := &WallCandidate{
			CorrelationID:       uuid.New(),
			Side:                f.side,
			Price:               f.level.Price,
			State:               StateCandidate,
			QuantityInitial:     f.level.Quantity,
			QuantityCurrent:     f.level.Quantity,
			FirstSeenAt:         now,
			StateEnteredAt:      now,
			LastSeenAt:          now,
			DistanceAtFirstSeen: f.dist,
		}
		cand.recordSize(now, f.level.Quantity, durationFromSeconds(cfg.ConsumeWindowSeconds))
		st.candidates[k] = cand
		if st.allow(events.KindCandidate, f.side, f.level.Price, now) {
			out = append(out, events.NewCandidate(st.Symbol, cand.CorrelationID, now, f.side, f.level.Price, f.level.Quantity, f.dist))
		}
	}

	return out, nil
}

// AdvanceTrade records an executed print into the symbol's trade
// window. It never produces events on its own; trades only inform the
// ConsumeDropPct check inside Advance.
func AdvanceTrade(st *SymbolState, t tradewindow.Trade, now time.Time) {
	st.Trades.Record(t)
}

func levelsOf(snap *book.Snapshot, side book.Side) []book.PriceLevel {
	if side == book.SideBid {
		return snap.Bids
	}
	return snap.Asks
}

// teleported reports whether the best price on side jumped by more than
// max(5, 2*candidate_max_distance_ticks) ticks since the previous
// snapshot. A teleport discards in-flight candidates on that side
// without emitting Lost, since the discontinuity means the old levels
// never meaningfully disappeared — the book just resynchronized at a
// new reference point (spec.md §4.3).
func teleported(prev, cur *book.Snapshot, side book.Side, cfg DetectorConfig) bool {
	if !cfg.TeleportReset || prev == nil {
		return false
	}
	prevBest, ok := prev.BestPrice(side)
	if !ok {
		return false
	}
	curBest, ok := cur.BestPrice(side)
	if !ok {
		return false
	}
	tick := cur.TickSize
	if tick.IsZero() {
		tick = prev.TickSize
	}
	if tick.IsZero() {
		return false
	}
	delta := curBest.Sub(prevBest).Abs()
	ticks := delta.Div(tick).Round(0).IntPart()
	threshold := int64(2 * cfg.CandidateMaxDistanceTicks)
	if threshold < 5 {
		threshold = 5
	}
	return ticks > threshold
}
