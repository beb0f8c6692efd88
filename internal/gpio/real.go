//go:build linux

package gpio

import (
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/quickshifter/internal/config"
)

const chipName = "gpiochip0"

// RealInput reads the shift sensor from actual hardware.
type RealInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealInput requests pin as an input with pull-up. The sensor pulls the
// line low when the lever is loaded.
func NewRealInput(pin int) (*RealInput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request shift pin %d: %w", pin, err)
	}

	return &RealInput{chip: chip, line: line}, nil
}

// Level returns true while the raw line is low.
func (r *RealInput) Level() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read shift pin: %w", err)
	}
	return raw == 0, nil
}

// Close reconfigures the pin to input with pull-down (the Pi boot default)
// before releasing it.
func (r *RealInput) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure shift pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close shift pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLines drives the ignition and injection kill lines.
type RealLines struct {
	chip  *gpiocdev.Chip
	lines [2]*gpiocdev.Line
}

// NewRealLines requests both pins as outputs, initially inactive.
func NewRealLines(pinIGN, pinINJ int) (*RealLines, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	ign, err := chip.RequestLine(pinIGN, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request IGN pin %d: %w", pinIGN, err)
	}

	inj, err := chip.RequestLine(pinINJ, gpiocdev.AsOutput(0))
	if err != nil {
		ign.Close()
		chip.Close()
		return nil, fmt.Errorf("request INJ pin %d: %w", pinINJ, err)
	}

	r := &RealLines{chip: chip}
	r.lines[config.LineIgnition] = ign
	r.lines[config.LineInjection] = inj
	return r, nil
}

// Write sets the line high while active.
func (r *RealLines) Write(line config.Line, active bool) error {
	if !line.Valid() {
		return fmt.Errorf("write %s: no such line", line)
	}
	v := 0
	if active {
		v = 1
	}
	if err := r.lines[line].SetValue(v); err != nil {
		return fmt.Errorf("write %s: %w", line, err)
	}
	return nil
}

// Close drives both lines low and releases them. The engine must never be
// left cut by a crashed or stopped process.
func (r *RealLines) Close() error {
	var errs []error
	for _, l := range config.Lines {
		line := r.lines[l]
		if line == nil {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", l, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", l, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealPulseInput feeds rising edges on the tach pin into a Meter.
type RealPulseInput struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealPulseInput watches pin for rising edges. Edges carry the kernel's
// event timestamp, mapped onto now by an EventClock.
func NewRealPulseInput(pin int, m *Meter, now func() time.Time) (*RealPulseInput, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	clock := NewEventClock(now)
	handler := func(evt gpiocdev.LineEvent) { m.Edge(clock.At(evt.Timestamp)) }
	line, err := chip.RequestLine(pin,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request rpm pin %d: %w", pin, err)
	}

	return &RealPulseInput{chip: chip, line: line}, nil
}

// Close stops edge delivery and releases the pin.
func (r *RealPulseInput) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rpm pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
