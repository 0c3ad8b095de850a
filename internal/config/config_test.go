package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsOnTopOfOverrides(t *testing.T) {
	path := writeConfig(t, `
symbols: ["AAPL"]
transport_url: "wss://example.test/stream"
instruments:
  - symbol: AAPL
    instrument_id: "265598"
    tick_size: "0.01"
detector:
  confirm_dwell_seconds: 45
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detector.ConfirmDwellSeconds != 45 {
		t.Fatalf("got %v want 45 (override)", cfg.Detector.ConfirmDwellSeconds)
	}
	if cfg.Detector.ConsumeDropPct != 0.20 {
		t.Fatalf("got %v want 0.20 (default preserved)", cfg.Detector.ConsumeDropPct)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("got %q want info default", cfg.LogLevel)
	}
}

func TestLoadAcceptsLegacyDetectorFieldNames(t *testing.T) {
	path := writeConfig(t, `
symbols: ["AAPL"]
transport_url: "wss://example.test/stream"
instruments:
  - symbol: AAPL
    instrument_id: "265598"
    tick_size: "0.01"
detector:
  k_ratio: 7.5
  dwell_seconds: 12
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Detector.CandidateRatioToMedian != 7.5 {
		t.Fatalf("got %v want 7.5 from legacy k_ratio", cfg.Detector.CandidateRatioToMedian)
	}
	if cfg.Detector.ConfirmDwellSeconds != 12 {
		t.Fatalf("got %v want 12 from legacy dwell_seconds", cfg.Detector.ConfirmDwellSeconds)
	}
}

func TestLoadRejectsUnknownSymbol(t *testing.T) {
	path := writeConfig(t, `
symbols: ["AAPL", "MSFT"]
transport_url: "wss://example.test/stream"
instruments:
  - symbol: AAPL
    instrument_id: "265598"
    tick_size: "0.01"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for MSFT with no instruments entry")
	}
}

func TestLoadRejectsTooManySymbols(t *testing.T) {
	path := writeConfig(t, `
symbols: ["A", "B"]
transport_url: "wss://example.test/stream"
detector:
  max_symbols: 1
instruments:
  - symbol: A
    instrument_id: "1"
    tick_size: "0.01"
  - symbol: B
    instrument_id: "2"
    tick_size: "0.01"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error exceeding max_symbols")
	}
}

func TestLoadRejectsTelegramWithoutChatID(t *testing.T) {
	path := writeConfig(t, `
symbols: ["AAPL"]
transport_url: "wss://example.test/stream"
instruments:
  - symbol: AAPL
    instrument_id: "1"
    tick_size: "0.01"
sinks:
  telegram_enabled: true
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for telegram_enabled without a chat id")
	}
}

func TestBuildResolverParsesTickSizes(t *testing.T) {
	path := writeConfig(t, `
symbols: ["AAPL"]
transport_url: "wss://example.test/stream"
instruments:
  - symbol: AAPL
    instrument_id: "265598"
    tick_size: "0.01"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, err := cfg.BuildResolver()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inst, err := res.Resolve(nil, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inst.InstrumentID != "265598" {
		t.Fatalf("got %q want 265598", inst.InstrumentID)
	}
}
