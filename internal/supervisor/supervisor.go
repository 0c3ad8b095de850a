// Package supervisor is the long-running ingestion loop that owns the
// transport subscription, multiplexes depth and trade frames per
// symbol, drives the detector, and publishes emitted events into the
// sink dispatcher. It mirrors the pipe-feed-through-aggregator-into-hub
// shape of the teacher's cmd/exit-indicator/main.go, generalized to
// several symbols and a richer reconnect/idle-guard protocol.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/book"
	"github.com/wallwatch/wallwatch/internal/clock"
	"github.com/wallwatch/wallwatch/internal/events"
	"github.com/wallwatch/wallwatch/internal/resolver"
	"github.com/wallwatch/wallwatch/internal/sink"
	"github.com/wallwatch/wallwatch/internal/tradewindow"
	"github.com/wallwatch/wallwatch/internal/transport"
	"github.com/wallwatch/wallwatch/internal/walldetect"
	"github.com/wallwatch/wallwatch/internal/wallerr"
)

// Supervisor owns per-symbol detector state, the transport, and the
// sink dispatcher for one run.
type Supervisor struct {
	log        *slog.Logger
	transport  transport.Transport
	resolver   resolver.Resolver
	dispatcher *sink.Dispatcher
	clock      clock.Source

	cfg walldetect.DetectorConfig

	mu      sync.Mutex
	states  map[string]*walldetect.SymbolState
	symbols map[string]resolver.Instrument

	idleGuard   time.Duration
	lastFrameAt time.Time

	// firstInOutage tracks whether the next transport error is the
	// first since a frame last arrived, so it logs at Warn once per
	// outage and Info on every retry after that. Reset to true as
	// soon as a frame arrives again.
	firstInOutage bool
}

// New constructs a Supervisor. Symbol resolution and SymbolState
// construction happen in Run, not here, so construction never fails.
func New(log *slog.Logger, tr transport.Transport, res resolver.Resolver, disp *sink.Dispatcher, c clock.Source, cfg walldetect.DetectorConfig, idleGuard time.Duration) *Supervisor {
	return &Supervisor{
		log:           log,
		transport:     tr,
		resolver:      res,
		dispatcher:    disp,
		clock:         c,
		cfg:           cfg,
		states:        make(map[string]*walldetect.SymbolState),
		symbols:       make(map[string]resolver.Instrument),
		idleGuard:     idleGuard,
		firstInOutage: true,
	}
}

// Run resolves symbols, opens the subscription, and services frames
// until ctx is canceled. It returns a wallerr-classified error only for
// startup failures (config, resolver, initial subscribe); transport-level
// faults after that are handled internally by the transport's own
// reconnect loop and surface here only as log entries: Warn for the
// first error since the last frame, Info for each one after it.
func (s *Supervisor) Run(ctx context.Context, symbols []string) error {
	if len(symbols) > s.cfg.MaxSymbols {
		return fmt.Errorf("%w: %d symbols exceeds max_symbols %d", wallerr.ErrConfig, len(symbols), s.cfg.MaxSymbols)
	}
	if err := s.resolveAndSubscribe(ctx, symbols); err != nil {
		return err
	}

	go s.transport.Run(ctx, func(connected bool) {
		if connected {
			s.log.Info("supervisor: transport connected")
		} else {
			s.log.Warn("supervisor: transport disconnected")
		}
	})

	s.mu.Lock()
	s.lastFrameAt = s.clock.Now()
	s.mu.Unlock()

	var idleTicker *time.Ticker
	var idleC <-chan time.Time
	if s.idleGuard > 0 {
		idleTicker = time.NewTicker(s.idleGuard)
		idleC = idleTicker.C
		defer idleTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Info("supervisor: shutting down")
			s.transport.Close()
			return nil

		case frame, ok := <-s.transport.Frames():
			if !ok {
				return nil
			}
			s.mu.Lock()
			s.lastFrameAt = s.clock.Now()
			s.firstInOutage = true
			s.mu.Unlock()
			s.handleFrame(frame)

		case err, ok := <-s.transport.Errors():
			if !ok {
				return nil
			}
			s.mu.Lock()
			first := s.firstInOutage
			s.firstInOutage = false
			s.mu.Unlock()
			if first {
				s.log.Warn("supervisor: transport error", "error", err)
			} else {
				s.log.Info("supervisor: transport error", "error", err)
			}

		case <-idleC:
			s.mu.Lock()
			since := s.clock.Now().Sub(s.lastFrameAt)
			s.mu.Unlock()
			if since >= s.idleGuard {
				s.log.Warn("supervisor: idle guard triggered, forcing reconnect", "idle_for", since)
				s.transport.Reconnect()
				if err := s.resolveAndSubscribe(ctx, symbols); err != nil {
					s.log.Error("supervisor: idle-guard reconnect failed", "error", err)
				}
			}
		}
	}
}

func (s *Supervisor) resolveAndSubscribe(ctx context.Context, symbols []string) error {
	for _, sym := range symbols {
		inst, err := s.resolver.Resolve(ctx, sym)
		if err != nil {
			return fmt.Errorf("%w: %v", wallerr.ErrResolver, err)
		}
		s.mu.Lock()
		s.symbols[sym] = inst
		if _, ok := s.states[sym]; !ok {
			s.states[sym] = walldetect.NewSymbolState(sym, s.cfg)
		}
		s.mu.Unlock()
		if err := s.transport.SubscribeSymbol(sym, inst.InstrumentID); err != nil {
			return fmt.Errorf("%w: subscribe %s: %v", wallerr.ErrTransport, sym, err)
		}
	}
	return nil
}

func (s *Supervisor) handleFrame(frame transport.Frame) {
	switch {
	case frame.Depth != nil:
		s.handleDepth(frame.Depth)
	case frame.Trade != nil:
		s.handleTrade(frame.Trade)
	}
}

func (s *Supervisor) handleDepth(f *transport.DepthFrame) {
	s.mu.Lock()
	st, ok := s.states[f.Symbol]
	inst := s.symbols[f.Symbol]
	s.mu.Unlock()
	if !ok {
		return
	}

	snap := &book.Snapshot{
		Symbol:       f.Symbol,
		InstrumentID: f.InstrumentID,
		TickSize:     pickTick(f.TickSize, inst),
		Bids:         toLevels(f.Bids),
		Asks:         toLevels(f.Asks),
		Depth:        s.cfg.Depth,
		ReceivedAt:   f.ReceivedAt,
	}

	now := s.clock.Now()
	evts, err := walldetect.Advance(st, snap, now)
	if err != nil {
		s.log.Error("supervisor: dropping invalid depth frame", "symbol", f.Symbol, "error", err)
		return
	}
	for _, evt := range evts {
		s.publish(evt)
	}
}

func (s *Supervisor) handleTrade(f *transport.TradeFrame) {
	s.mu.Lock()
	st, ok := s.states[f.Symbol]
	s.mu.Unlock()
	if !ok {
		return
	}
	side := tradewindow.Seller
	if f.BuyerInit {
		side = tradewindow.Buyer
	}
	now := s.clock.Now()
	walldetect.AdvanceTrade(st, tradewindow.Trade{
		Symbol:    f.Symbol,
		Price:     f.Price,
		Quantity:  f.Quantity,
		Side:      side,
		Timestamp: f.Timestamp,
	}, now)
}

func (s *Supervisor) publish(evt events.Event) {
	s.log.Info("wall event",
		"kind", evt.Kind(),
		"symbol", evt.Symbol(),
		"correlation_id", evt.CorrelationID(),
	)
	s.dispatcher.Publish(evt)
}

// AddSymbol and RemoveSymbol implement spec.md's subscription mutation:
// changes are applied immediately since the supervisor's own
// goroutine calls them synchronously from command handling, never
// concurrently with Run's frame loop (both run on the same task in
// this implementation; a chat command handler calls these through the
// same context the Run loop was started with).
func (s *Supervisor) AddSymbol(ctx context.Context, symbol string) error {
	s.mu.Lock()
	count := len(s.symbols)
	s.mu.Unlock()
	if count >= s.cfg.MaxSymbols {
		return fmt.Errorf("%w: max_symbols %d reached", wallerr.ErrConfig, s.cfg.MaxSymbols)
	}
	return s.resolveAndSubscribe(ctx, []string{symbol})
}

func (s *Supervisor) RemoveSymbol(symbol string) {
	s.transport.UnsubscribeSymbol(symbol)
	s.mu.Lock()
	delete(s.symbols, symbol)
	s.mu.Unlock()
}

// StatusSnapshot is a read-only copy of the supervisor's current
// subscription set, safe to hand to a command handler without sharing
// the live SymbolState map (spec.md §4.4's "copying summary fields").
type StatusSnapshot struct {
	Symbols   []string
	Connected bool
}

func (s *Supervisor) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	syms := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		syms = append(syms, sym)
	}
	return StatusSnapshot{Symbols: syms, Connected: s.transport.Connected()}
}

func toLevels(in []transport.LevelFrame) []book.PriceLevel {
	out := make([]book.PriceLevel, len(in))
	for i, l := range in {
		out[i] = book.PriceLevel{Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

func pickTick(frameTick decimal.Decimal, inst resolver.Instrument) decimal.Decimal {
	if !frameTick.IsZero() {
		return frameTick
	}
	return inst.TickSize
}
