package walldetect

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/book"
	"github.com/wallwatch/wallwatch/internal/events"
	"github.com/wallwatch/wallwatch/internal/tradewindow"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func snapshotWithAsk(price, tick string, qty int64) *book.Snapshot {
	return &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d(tick),
		Bids: []book.PriceLevel{
			{Price: d("99.99"), Quantity: 10},
			{Price: d("99.98"), Quantity: 10},
		},
		Asks: []book.PriceLevel{
			{Price: d("100.01"), Quantity: 10},
			{Price: d("100.02"), Quantity: 10},
			{Price: d(price), Quantity: qty},
		},
		Depth: 20,
	}
}

func testConfig() DetectorConfig {
	cfg := DefaultConfig()
	cfg.TopNLevels = 3
	cfg.ConfirmDwellSeconds = 3
	cfg.ConfirmMaxDistanceTicks = 5
	cfg.ConsumeWindowSeconds = 3
	cfg.MinExecConfirm = 50
	cfg.ConsumeDropPct = 0.25
	return cfg
}

func findEvent[T events.Event](t *testing.T, evts []events.Event) (T, bool) {
	for _, e := range evts {
		if v, ok := e.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestCandidateThenConfirm(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	evts, err := Advance(st, snap, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cand, ok := findEvent[events.Candidate](t, evts)
	if !ok {
		t.Fatalf("expected a Candidate event, got %#v", evts)
	}
	if cand.Quantity != 500 {
		t.Fatalf("got quantity %d want 500", cand.Quantity)
	}

	later := base.Add(4 * time.Second)
	evts, err = Advance(st, snap, later)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	confirmed, ok := findEvent[events.Confirmed](t, evts)
	if !ok {
		t.Fatalf("expected a Confirmed event after dwell, got %#v", evts)
	}
	if !confirmed.Price.Equal(d("100.03")) {
		t.Fatalf("got price %s want 100.03", confirmed.Price)
	}
}

func TestConsuming(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap500 := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap500, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t3 := base.Add(4 * time.Second)
	evts, err := Advance(st, snap500, t3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Confirmed](t, evts); !ok {
		t.Fatalf("expected confirm at t3, got %#v", evts)
	}

	tTrade := t3.Add(500 * time.Millisecond)
	AdvanceTrade(st, tradewindow.Trade{Symbol: "TEST", Price: d("100.03"), Quantity: 60, Timestamp: tTrade}, tTrade)

	t4 := t3.Add(time.Second)
	snap350 := snapshotWithAsk("100.03", "0.01", 350)
	evts, err = Advance(st, snap350, t4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	consuming, ok := findEvent[events.Consuming](t, evts)
	if !ok {
		t.Fatalf("expected Consuming event, got %#v", evts)
	}
	if consuming.QuantityNow != 350 {
		t.Fatalf("got quantity now %d want 350", consuming.QuantityNow)
	}
	if consuming.ExecutedVolume != 60 {
		t.Fatalf("got executed volume %d want 60", consuming.ExecutedVolume)
	}
}

func TestUnconfirmedCandidateDisappearsSilently(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withoutWall := &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d("0.01"),
		Bids:     snap.Bids,
		Asks: []book.PriceLevel{
			{Price: d("100.01"), Quantity: 10},
			{Price: d("100.02"), Quantity: 10},
		},
		Depth: 20,
	}
	evts, err := Advance(st, withoutWall, base.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Lost](t, evts); ok {
		t.Fatalf("CANDIDATE-only removal must not emit Lost, got %#v", evts)
	}
	if len(st.candidates) != 0 {
		t.Fatalf("expected candidate removed from state, got %d remaining", len(st.candidates))
	}
}

func TestTeleportReset(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(st.candidates) != 1 {
		t.Fatalf("expected one candidate tracked, got %d", len(st.candidates))
	}

	teleported := &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d("0.01"),
		Bids:     snap.Bids,
		Asks: []book.PriceLevel{
			{Price: d("105.01"), Quantity: 10},
			{Price: d("105.02"), Quantity: 10},
		},
		Depth: 20,
	}
	evts, err := Advance(st, teleported, base.Add(time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Lost](t, evts); ok {
		t.Fatalf("teleport reset must not emit Lost, got %#v", evts)
	}
	for key := range st.candidates {
		if key.PriceText == "100.03" {
			t.Fatalf("expected stale candidate cleared after teleport")
		}
	}
}

func TestCandidateCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.CooldownSeconds["wall_candidate"] = 60
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withoutWall := &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d("0.01"),
		Bids:     snap.Bids,
		Asks: []book.PriceLevel{
			{Price: d("100.01"), Quantity: 10},
			{Price: d("100.02"), Quantity: 10},
		},
		Depth: 20,
	}
	if _, err := Advance(st, withoutWall, base.Add(time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reappear := base.Add(2 * time.Second)
	evts, err := Advance(st, snap, reappear)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Candidate](t, evts); ok {
		t.Fatalf("expected candidate re-emission suppressed by cooldown, got %#v", evts)
	}

	// The reappeared wall is tracked again (silently), and a tracked key
	// never yields a second Candidate, so it leaves the book once more
	// before reappearing after the cooldown.
	if _, err := Advance(st, withoutWall, base.Add(60*time.Second)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	afterCooldown := base.Add(61 * time.Second)
	evts, err = Advance(st, snap, afterCooldown)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Candidate](t, evts); !ok {
		t.Fatalf("expected candidate re-emission once cooldown elapsed, got %#v", evts)
	}
}

func TestReconnectPreservesDwell(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Simulate a reconnect: a fresh transport session re-delivers the
	// same resting level. SymbolState is retained across the gap by the
	// supervisor (it is never reconstructed on reconnect), so dwell
	// continues accumulating from the original FirstSeenAt.
	afterReconnect := base.Add(4 * time.Second)
	evts, err := Advance(st, snap, afterReconnect)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Confirmed](t, evts); !ok {
		t.Fatalf("expected confirm to fire using pre-reconnect dwell, got %#v", evts)
	}
}

func TestIdempotentOnRepeatedSnapshot(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	evts, err := Advance(st, snap, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(evts) != 0 {
		t.Fatalf("expected no events on an unchanged repeated snapshot, got %#v", evts)
	}
}

func TestInvalidSnapshotLeavesStateUntouched(t *testing.T) {
	cfg := testConfig()
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := snapshotWithAsk("100.03", "0.01", 500)
	if _, err := Advance(st, snap, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	crossed := &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d("0.01"),
		Bids:     []book.PriceLevel{{Price: d("101.00"), Quantity: 10}},
		Asks:     []book.PriceLevel{{Price: d("100.00"), Quantity: 10}},
		Depth:    20,
	}
	before := len(st.candidates)
	_, err := Advance(st, crossed, base.Add(time.Second))
	if err == nil {
		t.Fatalf("expected an error for a crossed book")
	}
	if len(st.candidates) != before {
		t.Fatalf("expected state untouched after invalid frame, had %d now %d", before, len(st.candidates))
	}
}

func TestMedianZeroRequiresAbsThresholdOnly(t *testing.T) {
	cfg := testConfig()
	cfg.AbsQtyThreshold = 100
	st := NewSymbolState("TEST", cfg)
	base := time.Unix(1700000000, 0)

	snap := &book.Snapshot{
		Symbol:   "TEST",
		TickSize: d("0.01"),
		Bids:     []book.PriceLevel{{Price: d("99.99"), Quantity: 10}},
		Asks: []book.PriceLevel{
			{Price: d("100.01"), Quantity: 0},
			{Price: d("100.02"), Quantity: 0},
			{Price: d("100.03"), Quantity: 150},
		},
		Depth: 20,
	}
	evts, err := Advance(st, snap, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := findEvent[events.Candidate](t, evts); !ok {
		t.Fatalf("expected candidate using abs threshold alone when the top-N median is zero, got %#v", evts)
	}
}
