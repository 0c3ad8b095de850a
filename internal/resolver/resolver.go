// Package resolver turns configured ticker symbols into the concrete
// instrument identifiers a Transport subscribes with. Resolution
// happens once at startup; a symbol that fails to resolve is fatal
// (wallerr.ErrResolver) rather than silently skipped, so a typo never
// produces a partially-running detector.
package resolver

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wallwatch/wallwatch/internal/wallerr"
)

// Instrument is the resolved identity and tick size for one symbol.
type Instrument struct {
	Symbol       string
	InstrumentID string
	TickSize     decimal.Decimal
}

// Resolver maps ticker symbols to Instruments.
type Resolver interface {
	Resolve(ctx context.Context, symbol string) (Instrument, error)
}

// Static is a Resolver backed by a fixed, pre-populated table —
// grounded on the teacher's own config-driven approach (no live
// secdef lookup service is in scope for this spec; instrument metadata
// is supplied alongside the symbol list in config).
type Static struct {
	table map[string]Instrument
}

// NewStatic builds a Static resolver from a symbol->Instrument table.
func NewStatic(table map[string]Instrument) *Static {
	return &Static{table: table}
}

func (s *Static) Resolve(ctx context.Context, symbol string) (Instrument, error) {
	inst, ok := s.table[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("%w: unknown symbol %q", wallerr.ErrResolver, symbol)
	}
	return inst, nil
}
