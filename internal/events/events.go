// Package events defines the tagged event variants the wall detector
// emits. Per this spec's design note, the event stream is heterogeneous
// (four kinds with different payloads) and is modeled as one Go type per
// kind behind a common interface, not a single generic event bag.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/book"
)

// Kind discriminates the four wall lifecycle event variants.
type Kind int

const (
	KindCandidate Kind = iota
	KindConfirmed
	KindConsuming
	KindLost
)

func (k Kind) String() string {
	switch k {
	case KindCandidate:
		return "wall_candidate"
	case KindConfirmed:
		return "wall_confirmed"
	case KindConsuming:
		return "wall_consuming"
	case KindLost:
		return "wall_lost"
	default:
		return "unknown"
	}
}

// Event is the common surface every lifecycle event variant satisfies.
// Sinks type-switch on the concrete type (or branch on Kind()) to reach
// kind-specific fields.
type Event interface {
	Kind() Kind
	Symbol() string
	At() time.Time
	// CorrelationID identifies one wall's lifecycle: the same ID is
	// carried by the Candidate, Confirmed, Consuming and Lost events for
	// a given (symbol, side, price) wall.
	CorrelationID() uuid.UUID
}

type base struct {
	symbol string
	at     time.Time
	corrID uuid.UUID
}

func (b base) Symbol() string           { return b.symbol }
func (b base) At() time.Time            { return b.at }
func (b base) CorrelationID() uuid.UUID { return b.corrID }

// Candidate is emitted when a resting level first satisfies the
// candidate predicate.
type Candidate struct {
	base
	Side          book.Side
	Price         decimal.Decimal
	Quantity      int64
	DistanceTicks int
}

func NewCandidate(symbol string, corrID uuid.UUID, at time.Time, side book.Side, price decimal.Decimal, qty int64, distTicks int) Candidate {
	return Candidate{base: base{symbol: symbol, at: at, corrID: corrID}, Side: side, Price: price, Quantity: qty, DistanceTicks: distTicks}
}

func (Candidate) Kind() Kind { return KindCandidate }

// Confirmed is emitted when a candidate survives its dwell period
// without shrinking past the confirm tolerance.
type Confirmed struct {
	base
	Side         book.Side
	Price        decimal.Decimal
	Quantity     int64
	DwellSeconds float64
}

func NewConfirmed(symbol string, corrID uuid.UUID, at time.Time, side book.Side, price decimal.Decimal, qty int64, dwell float64) Confirmed {
	return Confirmed{base: base{symbol: symbol, at: at, corrID: corrID}, Side: side, Price: price, Quantity: qty, DwellSeconds: dwell}
}

func (Confirmed) Kind() Kind { return KindConfirmed }

// Consuming is emitted when a confirmed wall shrinks by at least the
// configured drop percentage while real trades execute at its price.
type Consuming struct {
	base
	Side           book.Side
	Price          decimal.Decimal
	QuantityBefore int64
	QuantityNow    int64
	DropPct        float64
	ExecutedVolume int64
}

func NewConsuming(symbol string, corrID uuid.UUID, at time.Time, side book.Side, price decimal.Decimal, before, now int64, dropPct float64, executed int64) Consuming {
	return Consuming{
		base:           base{symbol: symbol, at: at, corrID: corrID},
		Side:           side,
		Price:          price,
		QuantityBefore: before,
		QuantityNow:    now,
		DropPct:        dropPct,
		ExecutedVolume: executed,
	}
}

func (Consuming) Kind() Kind { return KindConsuming }

// Lost is emitted when a confirmed or consuming wall disappears from the
// book. Per spec.md §4.3, a wall that was never confirmed is dropped
// silently — Lost is never emitted for a CANDIDATE-only key.
type Lost struct {
	base
	Side          book.Side
	Price         decimal.Decimal
	LastQuantity  int64
	AgeSeconds    float64
	PreviousState string
}

func NewLost(symbol string, corrID uuid.UUID, at time.Time, side book.Side, price decimal.Decimal, lastQty int64, age float64, previousState string) Lost {
	return Lost{
		base:          base{symbol: symbol, at: at, corrID: corrID},
		Side:          side,
		Price:         price,
		LastQuantity:  lastQty,
		AgeSeconds:    age,
		PreviousState: previousState,
	}
}

func (Lost) Kind() Kind { return KindLost }
