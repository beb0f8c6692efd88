package config

import (
	"errors"
	"fmt"
)

// Validate reports every problem with s. A nil error means the snapshot is
// safe to hand to the control loop.
func (s Snapshot) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if s.Mode != ModeManual && s.Mode != ModeAuto {
		add("mode: invalid value %d", int(s.Mode))
	}
	if s.RPMSource != RPMFromCoil && s.RPMSource != RPMFromInjector {
		add("rpm_source: invalid value %d", int(s.RPMSource))
	}
	if !s.CutOutput.Valid() {
		add("cut_output: invalid value %d", int(s.CutOutput))
	}
	if s.PPR <= 0 {
		add("ppr: must be > 0, got %v", s.PPR)
	}
	if s.RPMScale <= 0 {
		add("rpm_scale: must be > 0, got %v", s.RPMScale)
	}
	if s.RPMMin < 0 {
		add("rpm_min: must be >= 0, got %d", s.RPMMin)
	}
	if s.ManualKillMs <= 0 {
		add("manual_kill_ms: must be > 0, got %d", s.ManualKillMs)
	}
	if s.DebounceShiftMs < 0 {
		add("debounce_shift_ms: must be >= 0, got %d", s.DebounceShiftMs)
	}
	if s.HoldoffMs < 0 {
		add("holdoff_ms: must be >= 0, got %d", s.HoldoffMs)
	}

	if len(s.Bands) > MaxBands {
		add("bands: at most %d allowed, got %d", MaxBands, len(s.Bands))
	}
	if s.Mode == ModeAuto && len(s.Bands) == 0 {
		add("bands: auto mode needs at least one band")
	}
	for i, b := range s.Bands {
		if b.RPMLo >= b.RPMHi {
			add("bands[%d]: rpm_lo %d must be below rpm_hi %d", i, b.RPMLo, b.RPMHi)
		}
		if b.CutMs <= 0 {
			add("bands[%d]: cut_ms must be > 0, got %d", i, b.CutMs)
		}
		if i > 0 && b.RPMLo < s.Bands[i-1].RPMHi {
			add("bands[%d]: overlaps bands[%d]", i, i-1)
		}
	}

	if s.Backfire.MinRPM < 0 {
		add("backfire.min_rpm: must be >= 0, got %d", s.Backfire.MinRPM)
	}
	if s.Backfire.ExtraMs < 0 {
		add("backfire.extra_ms: must be >= 0, got %d", s.Backfire.ExtraMs)
	}

	l := s.Lock
	if !l.Output.Valid() {
		add("lock.output: invalid value %d", int(l.Output))
	}
	if l.Enabled && l.Code.Len() == 0 {
		add("lock.code: required when lock is enabled")
	}
	if l.ShortMsMax <= 0 {
		add("lock.short_ms_max: must be > 0, got %d", l.ShortMsMax)
	}
	if l.LongMsMin <= l.ShortMsMax {
		add("lock.long_ms_min %d must exceed lock.short_ms_max %d", l.LongMsMin, l.ShortMsMax)
	}
	if l.GapMs <= 0 {
		add("lock.gap_ms: must be > 0, got %d", l.GapMs)
	}
	if l.TimeoutS < 0 {
		add("lock.timeout_s: must be >= 0, got %d", l.TimeoutS)
	}
	if l.MaxRetries < 0 {
		add("lock.max_retries: must be >= 0, got %d", l.MaxRetries)
	}

	return errors.Join(errs...)
}
