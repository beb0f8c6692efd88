package gpio

import (
	"errors"
	"testing"

	"github.com/sweeney/quickshifter/internal/config"
)

func TestFakeInputLevel(t *testing.T) {
	f := NewFakeInput(true, false, true)

	for i, want := range []bool{true, false, true, true} {
		got, err := f.Level()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("sample %d: expected %v, got %v", i, want, got)
		}
	}
}

func TestFakeInputNoSamples(t *testing.T) {
	f := NewFakeInput()

	if _, err := f.Level(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeInputError(t *testing.T) {
	f := NewFakeInput(true)
	f.ReadError = errors.New("simulated error")

	_, err := f.Level()
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeInputCloseAndReset(t *testing.T) {
	f := NewFakeInput(true, false)
	f.Level()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed {
		t.Error("Reset should clear Closed")
	}
	if got, _ := f.Level(); !got {
		t.Error("after reset: expected first sample")
	}
}

func TestFakeLinesRecordsWrites(t *testing.T) {
	f := &FakeLines{}
	f.Write(config.LineInjection, true)
	f.Write(config.LineInjection, false)

	if len(f.Writes) != 2 {
		t.Fatalf("expected 2 writes, got %d", len(f.Writes))
	}
	if f.Writes[0] != (Write{config.LineInjection, true}) {
		t.Errorf("first write: %+v", f.Writes[0])
	}
	if f.Level[config.LineInjection] {
		t.Error("INJ should be released")
	}
}
