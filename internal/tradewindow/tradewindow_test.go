package tradewindow

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestVolumeAtPriceSumsOnlyMatchingPrice(t *testing.T) {
	w := New(30 * time.Second)
	base := time.Unix(0, 0)
	w.Record(Trade{Price: d("100.03"), Quantity: 30, Timestamp: base})
	w.Record(Trade{Price: d("100.03"), Quantity: 30, Timestamp: base.Add(time.Second)})
	w.Record(Trade{Price: d("100.04"), Quantity: 100, Timestamp: base.Add(2 * time.Second)})

	got := w.VolumeAtPrice(d("100.03"), 10, base.Add(3*time.Second))
	if got != 60 {
		t.Fatalf("got %d want 60", got)
	}
}

func TestVolumeAtPriceExpiresOldTrades(t *testing.T) {
	w := New(time.Minute)
	base := time.Unix(0, 0)
	w.Record(Trade{Price: d("10"), Quantity: 5, Timestamp: base})

	got := w.VolumeAtPrice(d("10"), 3, base.Add(10*time.Second))
	if got != 0 {
		t.Fatalf("got %d want 0 (outside 3s window)", got)
	}
}

func TestAnyVolumeInWindowSumsAcrossPrices(t *testing.T) {
	w := New(time.Minute)
	base := time.Unix(0, 0)
	w.Record(Trade{Price: d("10"), Quantity: 5, Timestamp: base})
	w.Record(Trade{Price: d("11"), Quantity: 7, Timestamp: base.Add(time.Second)})

	got := w.AnyVolumeInWindow(5, base.Add(2*time.Second))
	if got != 12 {
		t.Fatalf("got %d want 12", got)
	}
}

func TestRecordTrimsHorizonOnInsert(t *testing.T) {
	w := New(2 * time.Second)
	base := time.Unix(0, 0)
	w.Record(Trade{Price: d("1"), Quantity: 1, Timestamp: base})
	w.Record(Trade{Price: d("1"), Quantity: 1, Timestamp: base.Add(5 * time.Second)})
	if len(w.entries) != 1 {
		t.Fatalf("expected stale entry trimmed, got %d entries", len(w.entries))
	}
}

func TestPriceComparisonIsExactNotFloating(t *testing.T) {
	w := New(time.Minute)
	base := time.Unix(0, 0)
	w.Record(Trade{Price: d("100.00"), Quantity: 9, Timestamp: base})
	got := w.VolumeAtPrice(d("100"), 10, base)
	if got != 9 {
		t.Fatalf("decimal.Equal should treat 100.00 and 100 as equal; got %d", got)
	}
}
