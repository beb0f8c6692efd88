package logic

import (
	"testing"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func oneBandConfig() config.Snapshot {
	cfg := config.Defaults()
	cfg.RPMMin = 2500
	cfg.Bands = []config.Band{{RPMLo: 3000, RPMHi: 5000, CutMs: 80}}
	return cfg
}

type controllerRig struct {
	cfg  *config.Memory
	rpm  *fakeRPM
	trig *fakeTrigger
	out  *fakeOutput
	log  *recordSink
	c    *Controller
}

func newControllerRig(t *testing.T, cfg config.Snapshot) *controllerRig {
	t.Helper()
	r := &controllerRig{
		cfg:  config.NewMemory(cfg),
		rpm:  &fakeRPM{},
		trig: &fakeTrigger{},
		out:  &fakeOutput{},
		log:  &recordSink{},
	}
	r.c = NewController(r.cfg, r.rpm, r.trig, r.out, r.log)
	r.c.Begin(t0)
	return r
}

func TestDecideManual(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeManual
	cfg.ManualKillMs = 65

	d := Decide(9000, cfg)
	if d.CutMs != 65 {
		t.Errorf("CutMs: got %d, want 65", d.CutMs)
	}
	if d.Line != config.LineIgnition {
		t.Errorf("Line: got %s, want IGN", d.Line)
	}
	if d.Backfire {
		t.Error("backfire should be off")
	}
}

func TestDecideAutoBands(t *testing.T) {
	cfg := config.Defaults()

	tests := []struct {
		rpm  int
		want int
	}{
		{3000, 80},
		{4999, 80},
		{5000, 50}, // gap between bands falls through to the last band
		{5001, 70},
		{8000, 62},
		{10999, 55},
		{11001, 50},
		{12499, 50},
		{12500, 50},
		{16000, 50},
	}
	for _, tt := range tests {
		if got := Decide(tt.rpm, cfg).CutMs; got != tt.want {
			t.Errorf("Decide(%d): got %d, want %d", tt.rpm, got, tt.want)
		}
	}
}

func TestDecideAboveLastBandUsesLastBand(t *testing.T) {
	cfg := config.Defaults()
	cfg.Bands = []config.Band{
		{RPMLo: 3000, RPMHi: 6000, CutMs: 90},
		{RPMLo: 6000, RPMHi: 9000, CutMs: 40},
	}
	for _, rpm := range []int{9000, 9001, 20000} {
		if got := Decide(rpm, cfg).CutMs; got != 40 {
			t.Errorf("Decide(%d): got %d, want 40", rpm, got)
		}
	}
}

func TestDecideBackfireForcesIgnition(t *testing.T) {
	cfg := oneBandConfig()
	cfg.CutOutput = config.LineInjection
	cfg.Backfire = config.Backfire{Enabled: true, MinRPM: 3500, ExtraMs: 15}

	d := Decide(4000, cfg)
	if d.Line != config.LineIgnition {
		t.Errorf("Line: got %s, want IGN", d.Line)
	}
	if d.CutMs != 95 {
		t.Errorf("CutMs: got %d, want 95", d.CutMs)
	}
	if !d.Backfire {
		t.Error("expected backfire flag")
	}

	d = Decide(3400, cfg)
	if d.Line != config.LineInjection || d.CutMs != 80 || d.Backfire {
		t.Errorf("below backfire rpm: got %+v", d)
	}
}

func TestDecideClamps(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeManual

	cfg.ManualKillMs = 5
	if got := Decide(5000, cfg).CutMs; got != config.CutMsMin {
		t.Errorf("short manual: got %d, want %d", got, config.CutMsMin)
	}

	cfg.ManualKillMs = 140
	cfg.Backfire = config.Backfire{Enabled: true, MinRPM: 0, ExtraMs: 30}
	if got := Decide(5000, cfg).CutMs; got != config.CutMsMax {
		t.Errorf("backfire overflow: got %d, want %d", got, config.CutMsMax)
	}
}

func TestDecideAlwaysWithinBounds(t *testing.T) {
	cfg := config.Defaults()
	cfg.Backfire = config.Backfire{Enabled: true, MinRPM: 6000, ExtraMs: 200}
	cfg.Bands[0].CutMs = 1
	for rpm := 0; rpm <= 20000; rpm += 250 {
		got := Decide(rpm, cfg).CutMs
		if got < config.CutMsMin || got > config.CutMsMax {
			t.Fatalf("Decide(%d) = %d outside [%d, %d]", rpm, got, config.CutMsMin, config.CutMsMax)
		}
	}
}

func TestControllerStartsIdle(t *testing.T) {
	r := newControllerRig(t, config.Defaults())
	if r.c.State() != CutIdle {
		t.Errorf("state: got %s, want IDLE", r.c.State())
	}
	if r.c.Reason() != ReasonOK {
		t.Errorf("reason: got %s, want ok", r.c.Reason())
	}
}

func TestControllerBelowRPMMin(t *testing.T) {
	r := newControllerRig(t, oneBandConfig())
	r.rpm.rpm = 2000

	r.trig.press()
	r.c.Tick(t0)
	if r.c.State() != CutArmed {
		t.Fatalf("after edge: got %s, want ARMED", r.c.State())
	}
	if r.c.Reason() != ReasonTriggered {
		t.Errorf("reason: got %s, want triggered", r.c.Reason())
	}

	r.c.Tick(t0.Add(time.Millisecond))
	if r.c.State() != CutIdle {
		t.Errorf("state: got %s, want IDLE", r.c.State())
	}
	if r.c.Reason() != ReasonBelowRPMMin {
		t.Errorf("reason: got %s, want below_rpm_min", r.c.Reason())
	}
	if len(r.out.pulses) != 0 {
		t.Errorf("expected no pulses, got %d", len(r.out.pulses))
	}
	if len(r.log.records) != 0 {
		t.Errorf("expected no log records, got %d", len(r.log.records))
	}
}

func TestControllerCutCycle(t *testing.T) {
	cfg := oneBandConfig()
	cfg.HoldoffMs = 180
	cfg.PPR = 2
	cfg.RPMScale = 1.05
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4000

	r.trig.press()
	r.c.Tick(t0)
	r.c.Tick(t0.Add(time.Millisecond))

	if r.c.State() != CutRecover {
		t.Fatalf("state: got %s, want RECOVER", r.c.State())
	}
	if len(r.out.pulses) != 1 {
		t.Fatalf("expected 1 pulse, got %d", len(r.out.pulses))
	}
	p := r.out.pulses[0]
	if p.line != config.LineIgnition || p.d != 80*time.Millisecond {
		t.Errorf("pulse: got %s for %v, want IGN for 80ms", p.line, p.d)
	}
	if r.c.LastCutMs() != 80 {
		t.Errorf("LastCutMs: got %d, want 80", r.c.LastCutMs())
	}
	if !r.c.LastCutAt().Equal(t0.Add(time.Millisecond)) {
		t.Errorf("LastCutAt: got %v", r.c.LastCutAt())
	}
	if r.rpm.ppr != 2 || r.rpm.scale != 1.05 {
		t.Errorf("rpm calibration not pushed: ppr=%v scale=%v", r.rpm.ppr, r.rpm.scale)
	}

	if len(r.log.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(r.log.records))
	}
	rec := r.log.records[0]
	if rec.RPM != 4000 || rec.CutMs != 80 || !rec.AutoMode || rec.Backfire || rec.Line != config.LineIgnition || rec.Reason != "shift" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestControllerBackfireScenario(t *testing.T) {
	cfg := oneBandConfig()
	cfg.CutOutput = config.LineInjection
	cfg.Backfire = config.Backfire{Enabled: true, MinRPM: 3500, ExtraMs: 15}
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4000

	r.trig.press()
	r.c.Tick(t0)
	r.c.Tick(t0.Add(time.Millisecond))

	if len(r.out.pulses) != 1 {
		t.Fatalf("expected 1 pulse, got %d", len(r.out.pulses))
	}
	if got := r.out.pulses[0]; got.line != config.LineIgnition || got.d != 95*time.Millisecond {
		t.Errorf("pulse: got %s for %v, want IGN for 95ms", got.line, got.d)
	}
	rec := r.log.records[0]
	if !rec.Backfire || rec.Line != config.LineIgnition {
		t.Errorf("record should show backfire on IGN: %+v", rec)
	}
}

func TestControllerHoldoffMonotonic(t *testing.T) {
	cfg := oneBandConfig()
	cfg.HoldoffMs = 180
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4000

	r.trig.press()
	r.c.Tick(t0)
	cutAt := t0.Add(time.Millisecond)
	r.c.Tick(cutAt)

	if r.c.State() != CutRecover {
		t.Fatalf("state after cut: got %s, want RECOVER", r.c.State())
	}
	prev := r.c.HoldoffRemaining()
	if prev != cfg.Holdoff() {
		t.Fatalf("remaining on the cut tick: got %v, want %v", prev, cfg.Holdoff())
	}
	idleTransitions := 0
	for ms := 7; ms <= 400; ms += 7 {
		wasRecover := r.c.State() == CutRecover
		r.c.Tick(cutAt.Add(time.Duration(ms) * time.Millisecond))

		remain := r.c.HoldoffRemaining()
		if remain > prev {
			t.Fatalf("t=%dms: holdoff increased from %v to %v", ms, prev, remain)
		}
		prev = remain

		if wasRecover && r.c.State() == CutIdle {
			idleTransitions++
			if remain != 0 {
				t.Errorf("remaining should be 0 on return to IDLE, got %v", remain)
			}
			if ms < 180 {
				t.Errorf("left RECOVER after %dms, holdoff is 180ms", ms)
			}
			if r.c.Reason() != ReasonOK {
				t.Errorf("reason: got %s, want ok", r.c.Reason())
			}
		} else if r.c.State() == CutRecover && r.c.Reason() != ReasonHoldoff {
			t.Errorf("reason during holdoff: got %s", r.c.Reason())
		}
	}
	if idleTransitions != 1 {
		t.Errorf("expected exactly one RECOVER->IDLE transition, got %d", idleTransitions)
	}
}

func TestControllerIgnoresEdgeDuringHoldoff(t *testing.T) {
	cfg := oneBandConfig()
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4000

	r.trig.press()
	r.c.Tick(t0)
	r.c.Tick(t0.Add(time.Millisecond))

	// The controller does not read the trigger while recovering, so no
	// second cut can be issued before the hold-off expires.
	for ms := 2; ms < 150; ms += 10 {
		r.trig.press()
		r.c.Tick(t0.Add(time.Duration(ms) * time.Millisecond))
		r.trig.edge = false
	}
	if len(r.out.pulses) != 1 {
		t.Errorf("expected 1 pulse during holdoff, got %d", len(r.out.pulses))
	}
}

func TestControllerSecondShiftAfterHoldoff(t *testing.T) {
	cfg := oneBandConfig()
	cfg.HoldoffMs = 100
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4500

	r.trig.press()
	r.c.Tick(t0)
	r.c.Tick(t0.Add(1 * time.Millisecond))
	r.c.Tick(t0.Add(101 * time.Millisecond))
	if r.c.State() != CutIdle {
		t.Fatalf("state: got %s, want IDLE", r.c.State())
	}

	r.trig.press()
	r.c.Tick(t0.Add(110 * time.Millisecond))
	r.c.Tick(t0.Add(111 * time.Millisecond))
	if len(r.out.pulses) != 2 {
		t.Errorf("expected 2 pulses, got %d", len(r.out.pulses))
	}
}

func TestControllerReadsFreshConfigEachTick(t *testing.T) {
	cfg := oneBandConfig()
	r := newControllerRig(t, cfg)
	r.rpm.rpm = 4000

	r.trig.press()
	r.c.Tick(t0)

	next := cfg.Clone()
	next.Mode = config.ModeManual
	next.ManualKillMs = 40
	next.CutOutput = config.LineInjection
	if err := r.cfg.Set(next); err != nil {
		t.Fatalf("set config: %v", err)
	}

	r.c.Tick(t0.Add(time.Millisecond))
	if len(r.out.pulses) != 1 {
		t.Fatalf("expected 1 pulse, got %d", len(r.out.pulses))
	}
	if got := r.out.pulses[0]; got.line != config.LineInjection || got.d != 40*time.Millisecond {
		t.Errorf("pulse: got %s for %v, want INJ for 40ms", got.line, got.d)
	}
	if r.log.records[0].AutoMode {
		t.Error("record should show manual mode")
	}
}

func TestControllerCanCutNow(t *testing.T) {
	r := newControllerRig(t, oneBandConfig())

	r.rpm.rpm = 2000
	r.c.Tick(t0)
	if r.c.CanCutNow() {
		t.Error("CanCutNow should be false below rpm_min")
	}

	r.rpm.rpm = 3000
	r.c.Tick(t0.Add(time.Millisecond))
	if !r.c.CanCutNow() {
		t.Error("CanCutNow should be true when idle above rpm_min")
	}
	if r.c.CurrentRPM() != 3000 {
		t.Errorf("CurrentRPM: got %d, want 3000", r.c.CurrentRPM())
	}

	r.trig.press()
	r.c.Tick(t0.Add(2 * time.Millisecond))
	if r.c.CanCutNow() {
		t.Error("CanCutNow should be false while armed")
	}
}

func TestControllerBeginResets(t *testing.T) {
	r := newControllerRig(t, oneBandConfig())
	r.rpm.rpm = 4000
	r.trig.press()
	r.c.Tick(t0)
	r.c.Tick(t0.Add(time.Millisecond))
	r.c.Tick(t0.Add(50 * time.Millisecond))

	r.c.Begin(t0.Add(60 * time.Millisecond))
	s := r.c.Status()
	if s.State != CutIdle || s.Reason != ReasonOK || s.LastCutMs != 0 || s.HoldoffRemaining != 0 {
		t.Errorf("status after Begin: %+v", s)
	}
}

func TestControllerNilLogSink(t *testing.T) {
	cfg := config.NewMemory(oneBandConfig())
	rpm := &fakeRPM{rpm: 4000}
	trig := &fakeTrigger{}
	out := &fakeOutput{}
	c := NewController(cfg, rpm, trig, out, nil)
	c.Begin(t0)

	trig.press()
	c.Tick(t0)
	c.Tick(t0.Add(time.Millisecond))
	if len(out.pulses) != 1 {
		t.Errorf("expected 1 pulse, got %d", len(out.pulses))
	}
}

func TestCutStateStrings(t *testing.T) {
	want := map[CutState]string{
		CutIdle:     "IDLE",
		CutArmed:    "ARMED",
		CutCut:      "CUT",
		CutRecover:  "RECOVER",
		CutState(9): "UNKNOWN",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d: got %s, want %s", int(s), s.String(), w)
		}
	}
}
