package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/gpio"
)

// tachInput keeps the RPM pulse input on the pin that rpm_source selects, so
// a source change from the web takes effect without a restart. Only the loop
// goroutine touches it.
type tachInput struct {
	coil, inj int
	meter     *gpio.Meter
	open      func(pin int) (io.Closer, error)
	log       *slog.Logger

	started bool
	src     config.RPMSource
	pin     int
	in      io.Closer
}

// apply moves the input to the pin for src. It does nothing while src is
// unchanged, so a failed open is reported once per change.
func (t *tachInput) apply(src config.RPMSource) error {
	if t.started && src == t.src {
		return nil
	}
	t.started = true
	t.src = src

	if t.in != nil {
		if err := t.in.Close(); err != nil {
			t.log.Warn("close rpm input", "pin", t.pin, "err", err)
		}
		t.in = nil
	}
	t.meter.Reset()

	t.pin = rpmPin(src, t.coil, t.inj)
	in, err := t.open(t.pin)
	if err != nil {
		return fmt.Errorf("open rpm pin %d: %w", t.pin, err)
	}
	t.in = in
	t.log.Info("rpm input", "source", src, "pin", t.pin)
	return nil
}

// Close releases the current input, if any.
func (t *tachInput) Close() error {
	if t.in == nil {
		return nil
	}
	err := t.in.Close()
	t.in = nil
	return err
}
