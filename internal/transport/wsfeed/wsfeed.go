// Package wsfeed is a concrete transport.Transport over a JSON-framed
// WebSocket. The real upstream wire protocol is explicitly out of
// scope for this spec, so this package defines its own minimal
// envelope ({"type":"depth"|"trade", ...}) rather than speaking any
// particular exchange's protocol — the shape that matters is the
// reconnect/backoff/resubscribe loop, grounded on the teacher's
// IBKRCPGatewayDepthFeed.Run.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/transport"
	"github.com/wallwatch/wallwatch/internal/wallerr"
)

// Feed is a transport.Transport implementation speaking wsfeed's JSON
// envelope over a gorilla/websocket connection.
type Feed struct {
	url    string
	log    *slog.Logger
	dialer websocket.Dialer

	initialBackoff time.Duration
	maxBackoff     time.Duration

	mu      sync.RWMutex
	symbols map[string]string
	conn    *websocket.Conn
	connOK  bool

	frames chan transport.Frame
	errs   chan error

	ctx    context.Context
	cancel context.CancelFunc
}

// New returns a Feed that dials url. initialBackoff and maxBackoff
// configure the reconnect loop (spec.md's retry_backoff_initial_seconds
// and retry_backoff_max_seconds).
func New(url string, initialBackoff, maxBackoff time.Duration, log *slog.Logger) *Feed {
	return &Feed{
		url:            url,
		log:            log,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		symbols:        make(map[string]string),
		frames:         make(chan transport.Frame, 1024),
		errs:           make(chan error, 16),
	}
}

func (f *Feed) Frames() <-chan transport.Frame { return f.frames }
func (f *Feed) Errors() <-chan error           { return f.errs }

func (f *Feed) Connected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connOK
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connOK = v
	f.mu.Unlock()
}

func (f *Feed) SubscribeSymbol(symbol, instrumentID string) error {
	canon := strings.ToUpper(strings.TrimSpace(symbol))
	if canon == "" {
		return fmt.Errorf("%w: empty symbol", wallerr.ErrConfig)
	}
	f.mu.Lock()
	f.symbols[canon] = instrumentID
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		return f.sendSub(conn, canon, instrumentID)
	}
	return nil
}

func (f *Feed) UnsubscribeSymbol(symbol string) {
	canon := strings.ToUpper(strings.TrimSpace(symbol))
	f.mu.Lock()
	delete(f.symbols, canon)
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.WriteJSON(outbound{Type: "unsubscribe", Symbol: canon})
	}
}

// Reconnect drops the current connection, if any, and lets Run's own
// retry loop redial and resubscribe. It does not touch ctx, frames, or
// errs, so Run keeps running and the caller keeps receiving frames once
// the redial succeeds.
func (f *Feed) Reconnect() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Close permanently stops Run and closes frames/errs. It must only be
// called when the caller is done with this Feed for good.
func (f *Feed) Close() {
	if f.cancel != nil {
		f.cancel()
	}
	close(f.frames)
	close(f.errs)
}

// Run dials url, resubscribes every tracked symbol, and pumps incoming
// frames until ctx is canceled. On any dial, resubscribe or read error it
// closes the connection and waits before redialing, with a backoff that
// doubles from initialBackoff up to maxBackoff. The backoff resets to
// initialBackoff as soon as a connection is established and every symbol
// resubscribed, not on the first frame received over it.
func (f *Feed) Run(ctx context.Context, onStatus func(connected bool)) {
	if f.cancel != nil {
		return
	}
	f.ctx, f.cancel = context.WithCancel(ctx)

	backoff := f.initialBackoff
	for {
		select {
		case <-f.ctx.Done():
			return
		default:
		}

		conn, _, err := f.dialer.DialContext(f.ctx, f.url, nil)
		if err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(fmt.Errorf("%w: dial: %v", wallerr.ErrTransport, err))
			if !f.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.maxBackoff)
			continue
		}

		f.mu.Lock()
		f.conn = conn
		subs := make(map[string]string, len(f.symbols))
		for k, v := range f.symbols {
			subs[k] = v
		}
		f.mu.Unlock()

		subFailed := false
		for sym, inst := range subs {
			if err := f.sendSub(conn, sym, inst); err != nil {
				f.emitErr(fmt.Errorf("%w: resubscribe %s: %v", wallerr.ErrTransport, sym, err))
				subFailed = true
				break
			}
		}
		if subFailed {
			_ = conn.Close()
			if !f.sleep(backoff) {
				return
			}
			backoff = nextBackoff(backoff, f.maxBackoff)
			continue
		}

		f.setConnected(true)
		onStatus(true)
		backoff = f.initialBackoff

		if err := f.readLoop(conn); err != nil {
			f.setConnected(false)
			onStatus(false)
			f.emitErr(fmt.Errorf("%w: %v", wallerr.ErrTransport, err))
		}
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
		if !f.sleep(backoff) {
			return
		}
		backoff = nextBackoff(backoff, f.maxBackoff)
	}
}

func (f *Feed) sleep(d time.Duration) bool {
	select {
	case <-f.ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

type outbound struct {
	Type         string `json:"type"`
	Symbol       string `json:"symbol"`
	InstrumentID string `json:"instrument_id,omitempty"`
}

func (f *Feed) sendSub(conn *websocket.Conn, symbol, instrumentID string) error {
	return conn.WriteJSON(outbound{Type: "subscribe", Symbol: symbol, InstrumentID: instrumentID})
}

type inboundLevel struct {
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

type inboundMessage struct {
	Type         string         `json:"type"`
	Symbol       string         `json:"symbol"`
	InstrumentID string         `json:"instrument_id"`
	TickSize     string         `json:"tick_size"`
	Bids         []inboundLevel `json:"bids"`
	Asks         []inboundLevel `json:"asks"`
	Price        string         `json:"price"`
	Quantity     int64          `json:"quantity"`
	BuyerInit    bool           `json:"buyer_initiated"`
}

func (f *Feed) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	ticker := time.NewTicker(25 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return nil
		case <-ticker.C:
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return fmt.Errorf("ws read: %w", err)
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Warn("wsfeed: dropping unparseable frame", "error", err)
			continue
		}

		frame, err := toFrame(msg)
		if err != nil {
			f.log.Warn("wsfeed: dropping malformed frame", "error", err)
			continue
		}
		if frame == nil {
			continue
		}
		select {
		case f.frames <- *frame:
		case <-f.ctx.Done():
			return nil
		}
	}
}

func toFrame(msg inboundMessage) (*transport.Frame, error) {
	switch msg.Type {
	case "depth":
		tick, err := decimal.NewFromString(msg.TickSize)
		if err != nil {
			return nil, fmt.Errorf("tick_size: %w", err)
		}
		bids, err := toLevels(msg.Bids)
		if err != nil {
			return nil, fmt.Errorf("bids: %w", err)
		}
		asks, err := toLevels(msg.Asks)
		if err != nil {
			return nil, fmt.Errorf("asks: %w", err)
		}
		return &transport.Frame{Depth: &transport.DepthFrame{
			Symbol:       msg.Symbol,
			InstrumentID: msg.InstrumentID,
			TickSize:     tick,
			Bids:         bids,
			Asks:         asks,
			ReceivedAt:   time.Now(),
		}}, nil
	case "trade":
		price, err := decimal.NewFromString(msg.Price)
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		return &transport.Frame{Trade: &transport.TradeFrame{
			Symbol:       msg.Symbol,
			InstrumentID: msg.InstrumentID,
			Price:        price,
			Quantity:     msg.Quantity,
			BuyerInit:    msg.BuyerInit,
			Timestamp:    time.Now(),
		}}, nil
	default:
		return nil, nil
	}
}

func toLevels(raw []inboundLevel) ([]transport.LevelFrame, error) {
	out := make([]transport.LevelFrame, len(raw))
	for i, r := range raw {
		p, err := decimal.NewFromString(r.Price)
		if err != nil {
			return nil, err
		}
		out[i] = transport.LevelFrame{Price: p, Quantity: r.Quantity}
	}
	return out, nil
}

func (f *Feed) emitErr(err error) {
	select {
	case f.errs <- err:
	default:
	}
}
