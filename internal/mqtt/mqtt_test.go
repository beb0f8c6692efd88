package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/quickshifter/internal/config"
	"github.com/sweeney/quickshifter/internal/logic"
)

var ts = time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)

func TestFormatCutPayload(t *testing.T) {
	rec := logic.CutRecord{
		Timestamp: ts,
		RPM:       4000,
		CutMs:     95,
		AutoMode:  true,
		Backfire:  true,
		Line:      config.LineIgnition,
		Reason:    logic.LogReasonShift,
	}

	payload, err := FormatCutPayload("abc", rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed CutPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	c := parsed.Cut
	if c.Session != "abc" {
		t.Errorf("session: %s", c.Session)
	}
	if c.Timestamp != "2026-02-02T22:18:12Z" {
		t.Errorf("unexpected timestamp: %s", c.Timestamp)
	}
	if c.RPM != 4000 || c.CutMs != 95 {
		t.Errorf("rpm/cut: %d/%d", c.RPM, c.CutMs)
	}
	if c.Mode != "auto" || c.Line != "ign" || !c.Backfire || c.Reason != "shift" {
		t.Errorf("unexpected payload: %+v", c)
	}
}

func TestFormatCutPayloadManualInjection(t *testing.T) {
	payload, err := FormatCutPayload("s", logic.CutRecord{Timestamp: ts, Line: config.LineInjection})
	if err != nil {
		t.Fatal(err)
	}
	var parsed CutPayload
	json.Unmarshal(payload, &parsed)
	if parsed.Cut.Mode != "manual" || parsed.Cut.Line != "inj" {
		t.Errorf("unexpected payload: %+v", parsed.Cut)
	}
}

func TestFormatCutPayloadInvalidLine(t *testing.T) {
	if _, err := FormatCutPayload("s", logic.CutRecord{Line: config.Line(9)}); err == nil {
		t.Error("expected error for invalid line")
	}
}

func TestFormatLockPayload(t *testing.T) {
	payload, err := FormatLockPayload("s1", LockEvent{Timestamp: ts, Event: LockLockout, Reason: "retries", Retries: 5})
	if err != nil {
		t.Fatal(err)
	}
	var parsed LockPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Lock.Event != "LOCKOUT" || parsed.Lock.Reason != "retries" || parsed.Lock.Retries != 5 {
		t.Errorf("unexpected payload: %+v", parsed.Lock)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	payload, err := FormatSystemPayload("s1", SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Reason: "SIGTERM"})
	if err != nil {
		t.Fatal(err)
	}
	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "SHUTDOWN" || parsed.System.Reason != "SIGTERM" || parsed.System.Session != "s1" {
		t.Errorf("unexpected payload: %+v", parsed.System)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{}}`)
	payload, _ := FormatSystemPayload("s", SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if string(payload) != string(raw) {
		t.Errorf("raw payload should pass through, got %s", payload)
	}
}

func TestNewSessionIDUnique(t *testing.T) {
	a, b := NewSessionID(), NewSessionID()
	if a == "" || a == b {
		t.Errorf("session ids should be unique: %q %q", a, b)
	}
	if len(a) != 36 {
		t.Errorf("expected a UUID string, got %q", a)
	}
}

func TestShortSession(t *testing.T) {
	if got := shortSession("0123456789"); got != "01234567" {
		t.Errorf("got %q", got)
	}
	if got := shortSession("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
}

// fakeToken completes immediately.
type fakeToken struct{ err error }

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Error() error                   { return f.err }
func (f *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// stuckToken never completes until release is closed.
type stuckToken struct{ release chan struct{} }

func (s *stuckToken) Wait() bool {
	<-s.release
	return true
}

func (s *stuckToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-s.release:
		return true
	case <-time.After(d):
		return false
	}
}

func (s *stuckToken) Error() error          { return nil }
func (s *stuckToken) Done() <-chan struct{} { return s.release }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	published    []published
	err          error
	token        paho.Token // returned by Publish when set
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, published{topic, qos, retained, payload.([]byte)})
	if c.token != nil {
		return c.token
	}
	return &fakeToken{err: c.err}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeClient) topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.published))
	for i, p := range c.published {
		out[i] = p.topic
	}
	return out
}

func newTestPublisher(c *fakeClient) *RealPublisher {
	return &RealPublisher{
		client:  c,
		session: "test",
		log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		buf:     newRingBuffer(4),
	}
}

func TestRealPublisherConnectedPublishesDirectly(t *testing.T) {
	c := &fakeClient{connected: true}
	p := newTestPublisher(c)

	if err := p.PublishCut(logic.CutRecord{Timestamp: ts}); err != nil {
		t.Fatal(err)
	}
	if err := p.PublishLock(LockEvent{Timestamp: ts, Event: LockUnlocked}); err != nil {
		t.Fatal(err)
	}

	got := c.topics()
	if len(got) != 2 || got[0] != TopicCuts || got[1] != TopicLock {
		t.Errorf("unexpected topics: %v", got)
	}
	if c.published[0].qos != 0 || c.published[1].qos != 1 || !c.published[1].retained {
		t.Errorf("unexpected qos/retain: %+v", c.published)
	}
	if p.Buffered() != 0 {
		t.Error("nothing should be buffered while connected")
	}
}

func TestRealPublisherBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	for i := 0; i < 3; i++ {
		p.PublishCut(logic.CutRecord{Timestamp: ts, RPM: 1000 * i})
	}
	p.PublishSystem(SystemEvent{Timestamp: ts, Event: "HEARTBEAT"})

	if len(c.topics()) != 0 {
		t.Fatal("nothing should reach the client while disconnected")
	}
	if p.Buffered() != 4 {
		t.Fatalf("expected 4 buffered, got %d", p.Buffered())
	}

	c.connected = true
	p.onConnect()

	got := c.topics()
	want := []string{TopicCuts, TopicCuts, TopicCuts, TopicSystem}
	if len(got) != len(want) {
		t.Fatalf("replay: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("replay %d: got %s, want %s", i, got[i], want[i])
		}
	}
	var first CutPayload
	json.Unmarshal(c.published[0].payload, &first)
	if first.Cut.RPM != 0 {
		t.Errorf("replay should be oldest first, got rpm %d", first.Cut.RPM)
	}
	if p.Buffered() != 0 {
		t.Error("buffer should be empty after replay")
	}
}

func TestRealPublisherBufferOverflowDropsOldest(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	for i := 0; i < 6; i++ {
		p.PublishCut(logic.CutRecord{Timestamp: ts, RPM: i})
	}
	if p.Buffered() != 4 {
		t.Fatalf("expected capacity 4, got %d", p.Buffered())
	}

	c.connected = true
	p.onConnect()
	var first CutPayload
	json.Unmarshal(c.published[0].payload, &first)
	if first.Cut.RPM != 2 {
		t.Errorf("oldest surviving record should be rpm 2, got %d", first.Cut.RPM)
	}
}

func TestRealPublisherSystemError(t *testing.T) {
	c := &fakeClient{connected: true, err: errors.New("not authorised")}
	p := newTestPublisher(c)

	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Wait: true}); err == nil {
		t.Error("expected publish error")
	}
}

func TestRealPublisherSystemDoesNotWaitForBroker(t *testing.T) {
	tok := &stuckToken{release: make(chan struct{})}
	defer close(tok.release)
	c := &fakeClient{connected: true, token: tok}
	p := newTestPublisher(c)

	start := time.Now()
	for _, ev := range []string{"STARTUP", "HEARTBEAT"} {
		if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: ev}); err != nil {
			t.Fatalf("%s: %v", ev, err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("PublishSystem blocked for %v on an unacknowledged token", elapsed)
	}
	if got := c.topics(); len(got) != 2 || got[0] != TopicSystem {
		t.Errorf("unexpected topics: %v", got)
	}
}

func TestRealPublisherSystemWaitBuffersWhileDisconnected(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	if err := p.PublishSystem(SystemEvent{Timestamp: ts, Event: "SHUTDOWN", Wait: true}); err != nil {
		t.Fatal(err)
	}
	if p.Buffered() != 1 {
		t.Errorf("expected 1 buffered, got %d", p.Buffered())
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)
	p.Close()
	if !c.disconnected {
		t.Error("Close should disconnect")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	f.PublishCut(logic.CutRecord{RPM: 4000})
	f.PublishLock(LockEvent{Event: LockLocked})
	f.PublishSystem(SystemEvent{Timestamp: ts, Event: "STARTUP"})

	if len(f.Cuts) != 1 || f.Cuts[0].RPM != 4000 {
		t.Errorf("cuts: %+v", f.Cuts)
	}
	if names := f.LockEventNames(); len(names) != 1 || names[0] != LockLocked {
		t.Errorf("lock events: %v", names)
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("system events: %v", names)
	}
	if len(f.SystemPayloads) != 1 {
		t.Errorf("expected 1 system payload, got %d", len(f.SystemPayloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.PublishCut(logic.CutRecord{}); err == nil {
		t.Error("expected error")
	}
	if err := f.PublishSystem(SystemEvent{}); err == nil {
		t.Error("expected error")
	}
	if len(f.Cuts) != 0 || len(f.SystemEvents) != 0 {
		t.Error("nothing should be recorded on error")
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.PublishCut(logic.CutRecord{})
	f.Connected = true
	f.Close()
	f.Reset()

	if len(f.Cuts) != 0 || f.Closed || f.Connected {
		t.Error("Reset should clear state")
	}
}
