// Package transport defines the external collaborator the supervisor
// drives to receive book and trade frames. This package carries the
// interface, the frame types and Mock, a test double; the concrete
// WebSocket implementation lives in subpackage wsfeed, mirroring the teacher's
// ibkrcp.DepthFeed seam between internal/ibkrcp and internal/depth.
package transport

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LevelFrame is one resting price/quantity pair as received on the
// wire, before it is validated into a book.Snapshot.
type LevelFrame struct {
	Price    decimal.Decimal
	Quantity int64
}

// DepthFrame is a full top-N snapshot for one instrument. This spec
// decided (the upstream wire protocol is explicitly out of scope) that
// every frame is a complete replacement, never an incremental delta —
// matching the teacher's own IBKRCPGatewayDepthFeed, which coalesces
// book rows into full snapshots before handing them to the aggregator.
type DepthFrame struct {
	Symbol       string
	InstrumentID string
	TickSize     decimal.Decimal
	Bids         []LevelFrame
	Asks         []LevelFrame
	ReceivedAt   time.Time
}

// TradeFrame is one executed print.
type TradeFrame struct {
	Symbol       string
	InstrumentID string
	Price        decimal.Decimal
	Quantity     int64
	BuyerInit    bool
	Timestamp    time.Time
}

// Frame is the union the supervisor reads off a Transport's channel. At
// most one of Depth or Trade is set.
type Frame struct {
	Depth *DepthFrame
	Trade *TradeFrame
}

// Transport is the supervisor's external collaborator for receiving
// market data. One Transport instance is shared across all subscribed
// symbols; SubscribeSymbol/UnsubscribeSymbol mutate the live
// subscription set without tearing down the connection when possible.
//
// Run blocks until ctx is canceled or the connection is permanently
// unusable, reconnecting internally with backoff and invoking onStatus
// on every transition. Implementations must keep delivering frames
// across a reconnect without requiring the caller to reconstruct
// anything — detector state lives in the supervisor, not here.
//
// Reconnect forces the current connection to drop and rejoins through
// Run's own backoff-and-resubscribe loop; unlike Close, it must leave
// Frames/Errors open and Run running, so a caller (the idle guard) can
// call it repeatedly over the life of one Run without tearing anything
// down. Close is the one-way shutdown used when Run itself is ending.
type Transport interface {
	Run(ctx context.Context, onStatus func(connected bool))
	SubscribeSymbol(symbol, instrumentID string) error
	UnsubscribeSymbol(symbol string)
	Frames() <-chan Frame
	Errors() <-chan error
	Connected() bool
	Reconnect()
	Close()
}
