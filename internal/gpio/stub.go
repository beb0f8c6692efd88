//go:build !linux

package gpio

import (
	"errors"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealInput is not available on non-Linux platforms.
type RealInput struct{}

// NewRealInput returns an error on non-Linux platforms.
func NewRealInput(pin int) (*RealInput, error) { return nil, errUnsupported }

// Level is not implemented on non-Linux platforms.
func (r *RealInput) Level() (bool, error) { return false, errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RealInput) Close() error { return nil }

// RealLines is not available on non-Linux platforms.
type RealLines struct{}

// NewRealLines returns an error on non-Linux platforms.
func NewRealLines(pinIGN, pinINJ int) (*RealLines, error) { return nil, errUnsupported }

// Write is not implemented on non-Linux platforms.
func (r *RealLines) Write(config.Line, bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (r *RealLines) Close() error { return nil }

// RealPulseInput is not available on non-Linux platforms.
type RealPulseInput struct{}

// NewRealPulseInput returns an error on non-Linux platforms.
func NewRealPulseInput(pin int, m *Meter, now func() time.Time) (*RealPulseInput, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealPulseInput) Close() error { return nil }
