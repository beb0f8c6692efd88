package logic

import (
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

type fakeRPM struct {
	rpm   int
	ppr   float64
	scale float64
}

func (f *fakeRPM) RPM() int               { return f.rpm }
func (f *fakeRPM) SetPPR(ppr float64)     { f.ppr = ppr }
func (f *fakeRPM) SetScale(scale float64) { f.scale = scale }

type fakeTrigger struct {
	edge bool
	raw  bool
}

// press latches one debounced edge.
func (f *fakeTrigger) press() { f.edge = true }

func (f *fakeTrigger) Pressed() bool {
	e := f.edge
	f.edge = false
	return e
}

func (f *fakeTrigger) RawLevel() bool { return f.raw }

type pulseCall struct {
	line config.Line
	d    time.Duration
}

type setCall struct {
	line   config.Line
	active bool
}

type fakeOutput struct {
	pulses []pulseCall
	sets   []setCall
	level  [2]bool
	ticks  int
}

func (f *fakeOutput) Pulse(line config.Line, d time.Duration) {
	f.pulses = append(f.pulses, pulseCall{line, d})
	f.level[line] = true
}

func (f *fakeOutput) Set(line config.Line, active bool) {
	f.sets = append(f.sets, setCall{line, active})
	f.level[line] = active
}

func (f *fakeOutput) IsActive() bool { return f.level[0] || f.level[1] }

func (f *fakeOutput) Tick() { f.ticks++ }

func (f *fakeOutput) countSets(line config.Line, active bool) int {
	n := 0
	for _, s := range f.sets {
		if s.line == line && s.active == active {
			n++
		}
	}
	return n
}

type recordSink struct {
	records []CutRecord
}

func (r *recordSink) Append(rec CutRecord) { r.records = append(r.records, rec) }
