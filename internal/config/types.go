// Package config holds the quick-shifter configuration snapshot and the
// providers that persist it.
//
// A Snapshot is a plain value. Providers hand out deep copies, so a caller
// may hold one for the duration of a control tick without locking.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Hard limits on any cut applied to an output line.
const (
	CutMsMin = 20
	CutMsMax = 150
)

// MaxBands is the number of RPM bands the AUTO map can hold.
const MaxBands = 5

// Mode selects how the cut duration is chosen.
type Mode int

const (
	ModeManual Mode = iota
	ModeAuto
)

func (m Mode) String() string {
	switch m {
	case ModeManual:
		return "manual"
	case ModeAuto:
		return "auto"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m != ModeManual && m != ModeAuto {
		return nil, fmt.Errorf("invalid mode %d", int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "manual":
		*m = ModeManual
	case "auto":
		*m = ModeAuto
	default:
		return fmt.Errorf("invalid mode %q: want manual or auto", b)
	}
	return nil
}

// Line identifies one of the two physical cut outputs.
type Line int

const (
	LineIgnition Line = iota
	LineInjection
)

// Lines lists every output line, in wiring order.
var Lines = [...]Line{LineIgnition, LineInjection}

// Valid reports whether l names a physical line.
func (l Line) Valid() bool { return l == LineIgnition || l == LineInjection }

// String returns the short label used in logs ("IGN" or "INJ").
func (l Line) String() string {
	switch l {
	case LineIgnition:
		return "IGN"
	case LineInjection:
		return "INJ"
	}
	return fmt.Sprintf("Line(%d)", int(l))
}

// MarshalText implements encoding.TextMarshaler.
func (l Line) MarshalText() ([]byte, error) {
	switch l {
	case LineIgnition:
		return []byte("ign"), nil
	case LineInjection:
		return []byte("inj"), nil
	}
	return nil, fmt.Errorf("invalid line %d", int(l))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Line) UnmarshalText(b []byte) error {
	line, err := ParseLine(string(b))
	if err != nil {
		return err
	}
	*l = line
	return nil
}

// ParseLine accepts "ign"/"inj" in any case.
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(s) {
	case "ign":
		return LineIgnition, nil
	case "inj":
		return LineInjection, nil
	}
	return 0, fmt.Errorf("invalid line %q: want ign or inj", s)
}

// RPMSource selects where engine speed pulses are picked up.
type RPMSource int

const (
	RPMFromCoil RPMSource = iota
	RPMFromInjector
)

func (r RPMSource) String() string {
	switch r {
	case RPMFromCoil:
		return "coil"
	case RPMFromInjector:
		return "injector"
	}
	return fmt.Sprintf("RPMSource(%d)", int(r))
}

// MarshalText implements encoding.TextMarshaler.
func (r RPMSource) MarshalText() ([]byte, error) {
	if r != RPMFromCoil && r != RPMFromInjector {
		return nil, fmt.Errorf("invalid rpm source %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *RPMSource) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "coil":
		*r = RPMFromCoil
	case "injector":
		*r = RPMFromInjector
	default:
		return fmt.Errorf("invalid rpm source %q: want coil or injector", b)
	}
	return nil
}

// Band maps the RPM range [RPMLo, RPMHi) to a cut duration in AUTO mode.
type Band struct {
	RPMLo int `yaml:"rpm_lo" json:"lo"`
	RPMHi int `yaml:"rpm_hi" json:"hi"`
	CutMs int `yaml:"cut_ms" json:"t"`
}

// Backfire extends the cut and forces the ignition line near redline.
type Backfire struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	MinRPM  int  `yaml:"min_rpm" json:"min_rpm"`
	ExtraMs int  `yaml:"extra_ms" json:"extra_ms"`
}

// Lock configures the tap-code vehicle lock.
type Lock struct {
	Enabled    bool `yaml:"enabled" json:"enabled"`
	Output     Line `yaml:"output" json:"output"`
	Code       Code `yaml:"code" json:"code"`
	ShortMsMax int  `yaml:"short_ms_max" json:"short_ms_max"`
	LongMsMin  int  `yaml:"long_ms_min" json:"long_ms_min"`
	GapMs      int  `yaml:"gap_ms" json:"gap_ms"`
	TimeoutS   int  `yaml:"timeout_s" json:"timeout_s"`
	MaxRetries int  `yaml:"max_retries" json:"max_retries"`
}

// ShortMax is the longest press that still counts as a '0'.
func (l Lock) ShortMax() time.Duration { return ms(l.ShortMsMax) }

// LongMin is the shortest press that counts as a '1'.
func (l Lock) LongMin() time.Duration { return ms(l.LongMsMin) }

// Gap is the idle time after a press that finalizes the sequence.
func (l Lock) Gap() time.Duration { return ms(l.GapMs) }

// Window is the entry window measured from the last reset. Zero disables it.
func (l Lock) Window() time.Duration { return time.Duration(l.TimeoutS) * time.Second }

// Snapshot is one committed configuration.
type Snapshot struct {
	Mode            Mode      `yaml:"mode" json:"mode"`
	RPMSource       RPMSource `yaml:"rpm_source" json:"rpm_source"`
	PPR             float64   `yaml:"ppr" json:"ppr"`
	RPMScale        float64   `yaml:"rpm_scale" json:"rpm_scale"`
	RPMMin          int       `yaml:"rpm_min" json:"rpm_min"`
	ManualKillMs    int       `yaml:"manual_kill_ms" json:"manual_kill_ms"`
	DebounceShiftMs int       `yaml:"debounce_shift_ms" json:"debounce_shift_ms"`
	HoldoffMs       int       `yaml:"holdoff_ms" json:"holdoff_ms"`
	CutOutput       Line      `yaml:"cut_output" json:"cut_output"`
	Bands           []Band    `yaml:"bands" json:"map"`
	Backfire        Backfire  `yaml:"backfire" json:"backfire"`
	Lock            Lock      `yaml:"lock" json:"lock"`
}

// Holdoff is the minimum idle time after any cut.
func (s Snapshot) Holdoff() time.Duration { return ms(s.HoldoffMs) }

// Debounce is the shift trigger debounce time.
func (s Snapshot) Debounce() time.Duration { return ms(s.DebounceShiftMs) }

// Clone returns a copy that shares no memory with s.
func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Bands != nil {
		c.Bands = make([]Band, len(s.Bands))
		copy(c.Bands, s.Bands)
	}
	return c
}

// ClampCut bounds a cut duration to [CutMsMin, CutMsMax].
func ClampCut(cutMs int) int {
	if cutMs < CutMsMin {
		return CutMsMin
	}
	if cutMs > CutMsMax {
		return CutMsMax
	}
	return cutMs
}

// Defaults returns the factory configuration.
func Defaults() Snapshot {
	return Snapshot{
		Mode:            ModeAuto,
		RPMSource:       RPMFromCoil,
		PPR:             1.0,
		RPMScale:        1.0,
		RPMMin:          2500,
		ManualKillMs:    65,
		DebounceShiftMs: 25,
		HoldoffMs:       180,
		CutOutput:       LineIgnition,
		Bands: []Band{
			{RPMLo: 3000, RPMHi: 5000, CutMs: 80},
			{RPMLo: 5001, RPMHi: 7000, CutMs: 70},
			{RPMLo: 7001, RPMHi: 9000, CutMs: 62},
			{RPMLo: 9001, RPMHi: 11000, CutMs: 55},
			{RPMLo: 11001, RPMHi: 12500, CutMs: 50},
		},
		Backfire: Backfire{
			Enabled: false,
			MinRPM:  4500,
			ExtraMs: 15,
		},
		Lock: Lock{
			Enabled:    false,
			Output:     LineIgnition,
			Code:       MustParseCode("1001"),
			ShortMsMax: 300,
			LongMsMin:  600,
			GapMs:      400,
			TimeoutS:   30,
			MaxRetries: 5,
		},
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
