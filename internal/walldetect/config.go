package walldetect

import "fmt"

// DetectorConfig holds the immutable runtime thresholds spec.md §6
// defines, passed into each SymbolState at creation. Per this spec's
// design note there is no process-wide singleton — reconfiguration
// requires a supervisor restart, matching the teacher's config.Config
// being loaded once at startup and threaded through explicitly rather
// than read from a global.
type DetectorConfig struct {
	Depth                     int
	MaxSymbols                int
	TopNLevels                int
	CandidateRatioToMedian    float64
	CandidateMaxDistanceTicks int
	AbsQtyThreshold           int64
	ConfirmDwellSeconds       float64
	ConfirmMaxDistanceTicks   int
	ConfirmShrinkTolerance    float64
	ConsumeWindowSeconds      float64
	ConsumeDropPct            float64
	MinExecConfirm            int64
	TeleportReset             bool
	CooldownSeconds           map[string]float64
}

// DefaultConfig returns the defaults table from spec.md §6.
func DefaultConfig() DetectorConfig {
	return DetectorConfig{
		Depth:                     20,
		MaxSymbols:                10,
		TopNLevels:                5,
		CandidateRatioToMedian:    10.0,
		CandidateMaxDistanceTicks: 10,
		AbsQtyThreshold:           0,
		ConfirmDwellSeconds:       30.0,
		ConfirmMaxDistanceTicks:   1,
		ConfirmShrinkTolerance:    0.10,
		ConsumeWindowSeconds:      8.0,
		ConsumeDropPct:            0.20,
		MinExecConfirm:            50,
		TeleportReset:             true,
		CooldownSeconds: map[string]float64{
			"wall_candidate": 60,
			"wall_confirmed": 120,
			"wall_consuming": 45,
			"wall_lost":      0,
		},
	}
}

// cooldownFor returns the configured cooldown for kind, falling back to
// zero (no cooldown) if the config map omits it.
func (c DetectorConfig) cooldownFor(kind string) float64 {
	if c.CooldownSeconds == nil {
		return 0
	}
	return c.CooldownSeconds[kind]
}

// Validate rejects out-of-range configuration before the supervisor
// starts, matching the teacher's config.Load validation pass.
func (c DetectorConfig) Validate() error {
	if c.Depth <= 0 {
		return fmt.Errorf("depth must be positive, got %d", c.Depth)
	}
	if c.MaxSymbols <= 0 {
		return fmt.Errorf("max_symbols must be positive, got %d", c.MaxSymbols)
	}
	if c.TopNLevels <= 0 {
		return fmt.Errorf("top_n_levels must be positive, got %d", c.TopNLevels)
	}
	if c.CandidateRatioToMedian < 0 {
		return fmt.Errorf("candidate_ratio_to_median must not be negative")
	}
	if c.CandidateMaxDistanceTicks < 0 {
		return fmt.Errorf("candidate_max_distance_ticks must not be negative")
	}
	if c.ConfirmDwellSeconds < 0 {
		return fmt.Errorf("confirm_dwell_seconds must not be negative")
	}
	if c.ConsumeDropPct < 0 || c.ConsumeDropPct > 1 {
		return fmt.Errorf("consume_drop_pct must be between 0 and 1")
	}
	if c.ConfirmShrinkTolerance < 0 || c.ConfirmShrinkTolerance > 1 {
		return fmt.Errorf("confirm_shrink_tolerance must be between 0 and 1")
	}
	return nil
}

// rawConfig mirrors the YAML surface, accepting both the newer field
// names from spec.md §6 and the legacy names original_source's
// DetectorConfig carried (spec.md §9's open question: "legacy names
// should be accepted as aliases"). Fields present only in the legacy
// surface and with no coherent equivalent in the newer model
// (Emin, Amin, cancel_share_max, reposition_*) are accepted but ignored —
// this spec decided (per the same open question) to adopt the newer,
// coherent threshold set rather than the cancel-share/reposition model.
type rawConfig struct {
	Depth      *int `yaml:"depth"`
	MaxSymbols *int `yaml:"max_symbols"`
	TopNLevels *int `yaml:"top_n_levels"`

	CandidateRatioToMedian *float64 `yaml:"candidate_ratio_to_median"`
	KRatio                 *float64 `yaml:"k_ratio"` // legacy alias

	CandidateMaxDistanceTicks *int `yaml:"candidate_max_distance_ticks"`
	DistanceTicks             *int `yaml:"distance_ticks"` // legacy alias

	AbsQtyThreshold *int64 `yaml:"abs_qty_threshold"`

	ConfirmDwellSeconds *float64 `yaml:"confirm_dwell_seconds"`
	DwellSeconds        *float64 `yaml:"dwell_seconds"` // legacy alias

	ConfirmMaxDistanceTicks *int     `yaml:"confirm_max_distance_ticks"`
	ConfirmShrinkTolerance  *float64 `yaml:"confirm_shrink_tolerance"`

	ConsumeWindowSeconds *float64 `yaml:"consume_window_seconds"`
	ConsumingWindowSecs  *float64 `yaml:"consuming_window_seconds"` // legacy alias

	ConsumeDropPct    *float64 `yaml:"consume_drop_pct"`
	ConsumingDropPct  *float64 `yaml:"consuming_drop_pct"` // legacy alias

	MinExecConfirm *int64 `yaml:"min_exec_confirm"`
	TeleportReset  *bool  `yaml:"teleport_reset"`

	CooldownSeconds map[string]float64 `yaml:"cooldown_seconds"`

	CooldownConfirmedSeconds *float64 `yaml:"cooldown_confirmed_seconds"` // legacy alias
	CooldownConsumingSeconds *float64 `yaml:"cooldown_consuming_seconds"` // legacy alias

	// Legacy fields with no equivalent in the newer model; accepted so a
	// legacy config file parses without error, never consulted.
	Emin             *float64 `yaml:"Emin"`
	Amin             *float64 `yaml:"Amin"`
	CancelShareMax   *float64 `yaml:"cancel_share_max"`
	RepositionTicks  *int     `yaml:"reposition_ticks"`
	RepositionSimPct *float64 `yaml:"reposition_similar_pct"`
	RepositionMax    *int     `yaml:"reposition_max"`
}

// UnmarshalYAML merges rawConfig's new-names-win-over-legacy-aliases onto
// the defaults.
func (c *DetectorConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw rawConfig
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*c = DefaultConfig()

	pickInt(&c.Depth, raw.Depth)
	pickInt(&c.MaxSymbols, raw.MaxSymbols)
	pickInt(&c.TopNLevels, raw.TopNLevels)
	pickFloat(&c.CandidateRatioToMedian, raw.KRatio)
	pickFloat(&c.CandidateRatioToMedian, raw.CandidateRatioToMedian)
	pickInt(&c.CandidateMaxDistanceTicks, raw.DistanceTicks)
	pickInt(&c.CandidateMaxDistanceTicks, raw.CandidateMaxDistanceTicks)
	pickInt64(&c.AbsQtyThreshold, raw.AbsQtyThreshold)
	pickFloat(&c.ConfirmDwellSeconds, raw.DwellSeconds)
	pickFloat(&c.ConfirmDwellSeconds, raw.ConfirmDwellSeconds)
	pickInt(&c.ConfirmMaxDistanceTicks, raw.ConfirmMaxDistanceTicks)
	pickFloat(&c.ConfirmShrinkTolerance, raw.ConfirmShrinkTolerance)
	pickFloat(&c.ConsumeWindowSeconds, raw.ConsumingWindowSecs)
	pickFloat(&c.ConsumeWindowSeconds, raw.ConsumeWindowSeconds)
	pickFloat(&c.ConsumeDropPct, raw.ConsumingDropPct)
	pickFloat(&c.ConsumeDropPct, raw.ConsumeDropPct)
	pickInt64(&c.MinExecConfirm, raw.MinExecConfirm)
	pickBool(&c.TeleportReset, raw.TeleportReset)

	if raw.CooldownConfirmedSeconds != nil {
		c.CooldownSeconds["wall_confirmed"] = *raw.CooldownConfirmedSeconds
	}
	if raw.CooldownConsumingSeconds != nil {
		c.CooldownSeconds["wall_consuming"] = *raw.CooldownConsumingSeconds
	}
	for k, v := range raw.CooldownSeconds {
		c.CooldownSeconds[k] = v
	}
	return nil
}

func pickInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func pickInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func pickFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func pickBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}
