package sink

import (
	"context"
	"fmt"

	"github.com/wallwatch/wallwatch/internal/events"
)

// Console prints one line per event, grounded on original_source's
// ConsoleNotifier (space-separated key=value fields, one print per
// alert).
type Console struct {
	Writer func(string)
}

// NewConsole returns a Console sink writing through write.
func NewConsole(write func(string)) *Console {
	return &Console{Writer: write}
}

func (c *Console) Name() string { return "console" }

func (c *Console) Deliver(ctx context.Context, evt events.Event) error {
	line := formatLine(evt)
	if c.Writer != nil {
		c.Writer(line)
	} else {
		fmt.Println(line)
	}
	return nil
}

func formatLine(evt events.Event) string {
	switch e := evt.(type) {
	case events.Candidate:
		return fmt.Sprintf("event=%s symbol=%s side=%s price=%s quantity=%d distance_ticks=%d",
			e.Kind(), e.Symbol(), e.Side, e.Price, e.Quantity, e.DistanceTicks)
	case events.Confirmed:
		return fmt.Sprintf("event=%s symbol=%s side=%s price=%s quantity=%d dwell_seconds=%.1f",
			e.Kind(), e.Symbol(), e.Side, e.Price, e.Quantity, e.DwellSeconds)
	case events.Consuming:
		return fmt.Sprintf("event=%s symbol=%s side=%s price=%s quantity_before=%d quantity_now=%d drop_pct=%.2f executed_volume=%d",
			e.Kind(), e.Symbol(), e.Side, e.Price, e.QuantityBefore, e.QuantityNow, e.DropPct, e.ExecutedVolume)
	case events.Lost:
		return fmt.Sprintf("event=%s symbol=%s side=%s price=%s last_quantity=%d age_seconds=%.1f previous_state=%s",
			e.Kind(), e.Symbol(), e.Side, e.Price, e.LastQuantity, e.AgeSeconds, e.PreviousState)
	default:
		return fmt.Sprintf("event=%s symbol=%s", evt.Kind(), evt.Symbol())
	}
}
