// Package sink defines where wall lifecycle events go once the
// detector emits them, and carries the bounded async dispatch queue
// every concrete Sink runs behind (spec.md §5): a Sink that is slow or
// down must never block detection, so the supervisor hands it events
// through a fixed-size channel and drops the oldest on overflow.
package sink

import (
	"context"
	"log/slog"

	"github.com/wallwatch/wallwatch/internal/events"
)

// Sink delivers one wall lifecycle event. Deliver may block briefly
// (a network call) but must respect ctx cancellation.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, evt events.Event) error
}

// Dispatcher owns one goroutine and one bounded channel per registered
// Sink, so a stalled sink cannot starve the others or the detector.
type Dispatcher struct {
	log      *slog.Logger
	queues   []chan events.Event
	sinks    []Sink
	dropped  []uint64
	queueLen int
}

// NewDispatcher wires one queue per sink. queueLen bounds each queue;
// a full queue drops the oldest pending event for that sink and
// increments its drop counter rather than blocking the caller.
func NewDispatcher(log *slog.Logger, queueLen int, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{log: log, queueLen: queueLen}
	for _, s := range sinks {
		d.sinks = append(d.sinks, s)
		d.queues = append(d.queues, make(chan events.Event, queueLen))
		d.dropped = append(d.dropped, 0)
	}
	return d
}

// Run starts one delivery goroutine per sink; it returns once ctx is
// canceled and every goroutine has drained.
func (d *Dispatcher) Run(ctx context.Context) {
	done := make(chan struct{}, len(d.sinks))
	for i := range d.sinks {
		go d.runOne(ctx, i, done)
	}
	for range d.sinks {
		<-done
	}
}

func (d *Dispatcher) runOne(ctx context.Context, i int, done chan struct{}) {
	defer func() { done <- struct{}{} }()
	sink := d.sinks[i]
	queue := d.queues[i]
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-queue:
			if !ok {
				return
			}
			if err := sink.Deliver(ctx, evt); err != nil {
				d.log.Warn("sink delivery failed", "sink", sink.Name(), "kind", evt.Kind(), "symbol", evt.Symbol(), "error", err)
			}
		}
	}
}

// Publish enqueues evt on every sink's queue, dropping the oldest
// pending event for a sink whose queue is full rather than blocking.
func (d *Dispatcher) Publish(evt events.Event) {
	for i, queue := range d.queues {
		select {
		case queue <- evt:
		default:
			select {
			case <-queue:
				d.dropped[i]++
				d.log.Warn("sink queue full, dropping oldest event", "sink", d.sinks[i].Name(), "dropped_total", d.dropped[i])
			default:
			}
			select {
			case queue <- evt:
			default:
				d.dropped[i]++
				d.log.Warn("sink queue full, dropping event", "sink", d.sinks[i].Name(), "dropped_total", d.dropped[i])
			}
		}
	}
}

// DroppedCount returns the drop counter for the sink at index i.
func (d *Dispatcher) DroppedCount(i int) uint64 { return d.dropped[i] }
