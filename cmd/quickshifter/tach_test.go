package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/gpio"
)

type fakeCloser struct{ closed bool }

func (f *fakeCloser) Close() error {
	f.closed = true
	return nil
}

// tachRecorder hands out fake inputs and remembers which pins were opened.
type tachRecorder struct {
	pins   []int
	inputs []*fakeCloser
	err    error
}

func (r *tachRecorder) open(pin int) (io.Closer, error) {
	r.pins = append(r.pins, pin)
	if r.err != nil {
		return nil, r.err
	}
	in := &fakeCloser{}
	r.inputs = append(r.inputs, in)
	return in, nil
}

func newTestTach(rec *tachRecorder, meter *gpio.Meter) *tachInput {
	return &tachInput{
		coil:  27,
		inj:   24,
		meter: meter,
		open:  rec.open,
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestTachSwitchesPinOnSourceChange(t *testing.T) {
	rec := &tachRecorder{}
	clk := func() time.Time { return t0.Add(5 * time.Millisecond) }
	meter := gpio.NewMeter(clk, 0)
	tach := newTestTach(rec, meter)

	if err := tach.apply(config.RPMFromCoil); err != nil {
		t.Fatal(err)
	}
	if err := tach.apply(config.RPMFromCoil); err != nil {
		t.Fatal(err)
	}
	meter.Edge(t0)
	meter.Edge(t0.Add(5 * time.Millisecond))

	if err := tach.apply(config.RPMFromInjector); err != nil {
		t.Fatal(err)
	}

	if len(rec.pins) != 2 || rec.pins[0] != 27 || rec.pins[1] != 24 {
		t.Fatalf("opened pins: %v", rec.pins)
	}
	if !rec.inputs[0].closed || rec.inputs[1].closed {
		t.Error("old input should be closed, new one left open")
	}
	if got := meter.RPM(); got != 0 {
		t.Errorf("meter should forget the old pin's pulses, got %d rpm", got)
	}

	tach.Close()
	if !rec.inputs[1].closed {
		t.Error("Close should release the active input")
	}
}

func TestTachOpenFailureReportedOncePerChange(t *testing.T) {
	rec := &tachRecorder{err: errors.New("busy")}
	tach := newTestTach(rec, gpio.NewMeter(time.Now, 0))

	if err := tach.apply(config.RPMFromInjector); err == nil {
		t.Fatal("expected open error")
	}
	if err := tach.apply(config.RPMFromInjector); err != nil {
		t.Errorf("unchanged source should not retry, got %v", err)
	}

	rec.err = nil
	if err := tach.apply(config.RPMFromCoil); err != nil {
		t.Fatal(err)
	}
	if len(rec.pins) != 2 || rec.pins[1] != 27 {
		t.Errorf("opened pins: %v", rec.pins)
	}
	if err := tach.Close(); err != nil {
		t.Error(err)
	}
}

func TestRunLoopFollowsRPMSourceChange(t *testing.T) {
	rec := &tachRecorder{}
	r := newLoopRig(t, config.Defaults(), gpio.NewFakeInput(false), 0)
	tach := newTestTach(rec, gpio.NewMeter(time.Now, 0))
	var logBuf bytes.Buffer
	tach.log = slog.New(slog.NewTextHandler(&logBuf, nil))
	if err := tach.apply(config.Defaults().RPMSource); err != nil {
		t.Fatal(err)
	}
	r.deps.tach = tach

	r.start()
	r.ticks(2)
	snap := r.cfg.Get()
	snap.RPMSource = config.RPMFromInjector
	if err := r.cfg.Set(snap); err != nil {
		t.Fatal(err)
	}
	r.ticks(2)
	r.stop(t, syscall.SIGTERM)

	if len(rec.pins) != 2 || rec.pins[1] != 24 {
		t.Fatalf("loop should reopen the tach on the injector pin, opened %v", rec.pins)
	}
	if !bytes.Contains(logBuf.Bytes(), []byte("source=injector")) {
		t.Errorf("switch should be logged, got %q", logBuf.String())
	}
}
