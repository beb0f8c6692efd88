package gpio

import "time"

// Trigger debounces the shift sensor. It is polled once per control loop
// iteration; Pressed reports a rising edge seen by the most recent Poll.
type Trigger struct {
	in LevelReader

	raw    bool
	stable bool

	pending      bool
	pendingSince time.Time

	edge bool
}

// NewTrigger wraps an input. The initial stable level is released.
func NewTrigger(in LevelReader) *Trigger {
	return &Trigger{in: in}
}

// Poll samples the input. A new level must hold for debounce before it is
// accepted; an accepted press raises the edge flag until the next Poll.
// Edges that nobody consumed are discarded on the next Poll.
func (t *Trigger) Poll(now time.Time, debounce time.Duration) error {
	t.edge = false

	level, err := t.in.Level()
	if err != nil {
		return err
	}
	t.raw = level

	if level == t.stable {
		t.pending = false
		return nil
	}
	if !t.pending {
		t.pending = true
		t.pendingSince = now
	}
	if now.Sub(t.pendingSince) >= debounce {
		t.stable = level
		t.pending = false
		t.edge = level
	}
	return nil
}

// Pressed consumes the edge flag.
func (t *Trigger) Pressed() bool {
	e := t.edge
	t.edge = false
	return e
}

// RawLevel is the undebounced level from the last Poll.
func (t *Trigger) RawLevel() bool { return t.raw }

// Stable is the debounced level.
func (t *Trigger) Stable() bool { return t.stable }
