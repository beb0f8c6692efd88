package logic

import (
	"fmt"
	"time"

	"github.com/sweeney/quickshifter/internal/config"
)

// Guard decodes the tap-code typed on the shift sensor and holds the
// configured cut line active while the vehicle is locked. Short presses are
// '0', long presses are '1'; a pause longer than the gap finalizes the
// sequence. It is not safe for concurrent use.
type Guard struct {
	cfg     config.Provider
	trigger ShiftTrigger
	out     PulseOutput

	locked        bool
	unlockedPulse bool
	frozen        Frozen

	stage       Stage
	seq         config.Code
	overflow    bool // a press arrived with seq already full
	pressStart  time.Time
	retries     int
	windowStart time.Time
}

// NewGuard creates a Guard. Call Begin before the first Tick.
func NewGuard(cfg config.Provider, trigger ShiftTrigger, out PulseOutput) *Guard {
	return &Guard{
		cfg:     cfg,
		trigger: trigger,
		out:     out,
	}
}

// Begin locks the vehicle if the lock is enabled in the committed config.
func (g *Guard) Begin(now time.Time) {
	g.Reset(now)
	g.unlockedPulse = false
	cfg := g.cfg.Get()
	g.locked = cfg.Lock.Enabled
	if g.locked {
		g.assert(cfg.Lock)
	}
}

// Reset clears the typed sequence and the retry counter and restarts the
// entry window. The lock state is unchanged.
func (g *Guard) Reset(now time.Time) {
	g.stage = StageIdle
	g.seq.Clear()
	g.overflow = false
	g.pressStart = time.Time{}
	g.retries = 0
	g.windowStart = now
	g.frozen = FrozenNone
}

// Tick runs one decode step. While locked the lock output is re-applied on
// every call, whatever the decoder does.
func (g *Guard) Tick(now time.Time) {
	cfg := g.cfg.Get()

	if !cfg.Lock.Enabled {
		if g.locked {
			g.locked = false
			g.release()
		}
		g.frozen = FrozenNone
		return
	}
	if !g.locked {
		return
	}

	g.frozen = g.freezeReason(now, cfg.Lock)
	if g.frozen == FrozenNone {
		g.decode(now, cfg.Lock)
	}

	if g.locked {
		g.assert(cfg.Lock)
	}
}

func (g *Guard) freezeReason(now time.Time, l config.Lock) Frozen {
	if l.TimeoutS > 0 && now.Sub(g.windowStart) > l.Window() {
		return FrozenTimeout
	}
	if l.MaxRetries > 0 && g.retries >= l.MaxRetries {
		return FrozenRetries
	}
	return FrozenNone
}

func (g *Guard) decode(now time.Time, l config.Lock) {
	pressed := g.trigger.RawLevel()

	switch g.stage {
	case StageIdle:
		if pressed {
			g.stage = StagePressing
			g.pressStart = now
		}

	case StagePressing:
		if !pressed {
			held := now.Sub(g.pressStart)
			switch {
			case held <= l.ShortMax():
				g.push('0')
			case held >= l.LongMin():
				g.push('1')
			}
			// Presses between the thresholds are ambiguous and dropped.
			g.stage = StageGap
			g.pressStart = now
		}

	case StageGap:
		if pressed {
			g.stage = StagePressing
			g.pressStart = now
		} else if now.Sub(g.pressStart) >= l.Gap() {
			g.evaluate(now, l)
		}
	}
}

func (g *Guard) push(bit byte) {
	if !g.seq.Append(bit) {
		g.overflow = true
	}
}

func (g *Guard) evaluate(now time.Time, l config.Lock) {
	if g.seq.Len() == 0 && !g.overflow {
		g.stage = StageIdle
		g.pressStart = time.Time{}
		return
	}
	if !g.overflow && g.seq.Equal(l.Code) {
		g.unlock(now)
		return
	}
	g.retries++
	g.seq.Clear()
	g.overflow = false
	g.stage = StageIdle
	g.pressStart = time.Time{}
}

func (g *Guard) unlock(now time.Time) {
	g.locked = false
	g.unlockedPulse = true
	g.release()
	g.Reset(now)
}

func (g *Guard) assert(l config.Lock) {
	g.out.Set(l.Output, true)
}

func (g *Guard) release() {
	for _, line := range config.Lines {
		g.out.Set(line, false)
	}
}

// IsLocked reports whether the outputs are held by the lock.
func (g *Guard) IsLocked() bool { return g.locked }

// JustUnlocked reports true once after each unlock.
func (g *Guard) JustUnlocked() bool {
	if g.unlockedPulse {
		g.unlockedPulse = false
		return true
	}
	return false
}

// AdminUnlock unlocks when code matches the configured code exactly. Wrong
// codes do not count as retries.
func (g *Guard) AdminUnlock(code string, now time.Time) bool {
	if code != g.cfg.Get().Lock.Code.String() {
		return false
	}
	g.unlock(now)
	return true
}

// ForceLock locks the vehicle and applies the lock output immediately.
// If the lock is disabled in config the next Tick releases it again.
func (g *Guard) ForceLock(now time.Time) {
	g.locked = true
	g.unlockedPulse = false
	g.Reset(now)
	g.assert(g.cfg.Get().Lock)
}

// EnableLock turns the lock subsystem on without locking the vehicle. It
// reports false if the lock was already enabled.
func (g *Guard) EnableLock(now time.Time) (bool, error) {
	changed, err := g.setEnabled(true)
	if err != nil || !changed {
		return false, err
	}
	g.locked = false
	g.unlockedPulse = false
	g.release()
	g.Reset(now)
	return true, nil
}

// DisableLock turns the lock subsystem off and releases both outputs. It
// reports false if the lock was already disabled.
func (g *Guard) DisableLock(now time.Time) (bool, error) {
	changed, err := g.setEnabled(false)
	if err != nil || !changed {
		return false, err
	}
	g.locked = false
	g.unlockedPulse = false
	g.release()
	g.Reset(now)
	return true, nil
}

// DisableNoOutputChange turns the lock subsystem off but leaves the output
// lines exactly as they are.
func (g *Guard) DisableNoOutputChange(now time.Time) error {
	if _, err := g.setEnabled(false); err != nil {
		return err
	}
	g.locked = false
	g.unlockedPulse = false
	g.Reset(now)
	return nil
}

func (g *Guard) setEnabled(enabled bool) (bool, error) {
	snap := g.cfg.Get()
	if snap.Lock.Enabled == enabled {
		return false, nil
	}
	snap.Lock.Enabled = enabled
	if err := g.cfg.Set(snap); err != nil {
		return false, fmt.Errorf("persist lock enabled=%v: %w", enabled, err)
	}
	return true, nil
}

// Status returns a value copy of the guard state.
func (g *Guard) Status() LockStatus {
	return LockStatus{
		Enabled: g.cfg.Get().Lock.Enabled,
		Locked:  g.locked,
		Stage:   g.stage,
		Retries: g.retries,
		SeqLen:  g.seq.Len(),
		Frozen:  g.frozen,
	}
}

// Gate wraps out so that requests made while the vehicle is locked are
// dropped. The Guard itself must keep the ungated output.
func (g *Guard) Gate(out PulseOutput) PulseOutput {
	return &gatedOutput{guard: g, out: out}
}

type gatedOutput struct {
	guard *Guard
	out   PulseOutput
}

func (o *gatedOutput) Pulse(line config.Line, d time.Duration) {
	if o.guard.locked {
		return
	}
	o.out.Pulse(line, d)
}

func (o *gatedOutput) Set(line config.Line, active bool) {
	if o.guard.locked {
		return
	}
	o.out.Set(line, active)
}

func (o *gatedOutput) IsActive() bool { return o.out.IsActive() }
