package transport

import (
	"context"
	"strings"
	"sync"
)

// Mock is a Transport double for tests and demos, grounded on the
// teacher's MockDepthFeed: a buffered channel pair the test drives
// directly via SendFrame/SendError, with Run just forwarding status.
type Mock struct {
	frames     chan Frame
	errors     chan error
	mu         sync.Mutex
	connected  bool
	symbols    map[string]string
	reconnects int

	cancel context.CancelFunc
}

// NewMock returns a connected Mock transport.
func NewMock() *Mock {
	return &Mock{
		frames:    make(chan Frame, 64),
		errors:    make(chan error, 16),
		connected: true,
		symbols:   make(map[string]string),
	}
}

func (m *Mock) Run(ctx context.Context, onStatus func(connected bool)) {
	_, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go func() {
		onStatus(m.Connected())
		<-ctx.Done()
	}()
}

func (m *Mock) SubscribeSymbol(symbol, instrumentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[strings.ToUpper(symbol)] = instrumentID
	return nil
}

func (m *Mock) UnsubscribeSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.symbols, strings.ToUpper(symbol))
}

func (m *Mock) Frames() <-chan Frame { return m.frames }
func (m *Mock) Errors() <-chan error { return m.errors }

func (m *Mock) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *Mock) SetConnected(c bool) {
	m.mu.Lock()
	m.connected = c
	m.mu.Unlock()
}

// Reconnect simulates a forced reconnect: it flips connected off and
// back on, without closing frames/errors, so a test can keep driving
// the mock with SendFrame afterward.
func (m *Mock) Reconnect() {
	m.mu.Lock()
	m.reconnects++
	m.mu.Unlock()
	m.SetConnected(false)
	m.SetConnected(true)
}

// Reconnects reports how many times Reconnect has been called, for
// tests asserting the idle guard actually fired.
func (m *Mock) Reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnects
}

func (m *Mock) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	close(m.frames)
	close(m.errors)
}

// SendFrame and SendError let a test drive the mock directly.
func (m *Mock) SendFrame(f Frame)  { m.frames <- f }
func (m *Mock) SendError(e error)  { m.errors <- e }
