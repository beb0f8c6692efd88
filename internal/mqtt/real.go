package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/quickshifter/internal/logic"
)

// BufferCapacity is how many messages are held while the broker is away.
const BufferCapacity = 256

const (
	connectRetryInterval = 5 * time.Second
	systemPublishTimeout = 5 * time.Second
	asyncPublishTimeout  = 10 * time.Second
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed once it comes back.
type RealPublisher struct {
	client  client
	session string
	log     *slog.Logger

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealPublisher starts connecting to broker in the background and returns
// immediately; the control loop never waits for the network.
func NewRealPublisher(broker, session string, logger *slog.Logger) *RealPublisher {
	p := &RealPublisher{
		session: session,
		log:     logger.With("component", "mqtt"),
		buf:     newRingBuffer(BufferCapacity),
	}

	will, _ := FormatSystemPayload(session, SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("quickshifter-" + shortSession(session)).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", "err", err)
		})

	c := paho.NewClient(opts)
	p.client = c
	c.Connect()
	return p
}

func shortSession(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// PublishCut sends a cut record at QoS 0 without waiting for the broker.
func (p *RealPublisher) PublishCut(rec logic.CutRecord) error {
	payload, err := FormatCutPayload(p.session, rec)
	if err != nil {
		return fmt.Errorf("format cut payload: %w", err)
	}
	p.send(bufferedMsg{topic: TopicCuts, payload: payload})
	return nil
}

// PublishLock sends a lock event at QoS 1 without waiting for the broker.
func (p *RealPublisher) PublishLock(event LockEvent) error {
	payload, err := FormatLockPayload(p.session, event)
	if err != nil {
		return fmt.Errorf("format lock payload: %w", err)
	}
	p.send(bufferedMsg{topic: TopicLock, payload: payload, qos: 1, retained: true})
	return nil
}

// PublishSystem sends a system lifecycle event at QoS 1. It returns at once
// unless event.Wait is set, in which case a connected publisher waits for
// delivery so SHUTDOWN reaches the broker before exit.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(p.session, event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}

	if !event.Wait {
		p.send(msg)
		return nil
	}
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(systemPublishTimeout) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}

func (p *RealPublisher) send(msg bufferedMsg) {
	if !p.client.IsConnectionOpen() {
		p.buffer(msg)
		return
	}
	p.publishAsync(msg)
}

func (p *RealPublisher) buffer(msg bufferedMsg) {
	p.mu.Lock()
	first := p.buf.push(msg)
	p.mu.Unlock()
	if first {
		p.log.Warn("buffer full, dropping oldest", "capacity", BufferCapacity)
	}
}

func (p *RealPublisher) publishAsync(msg bufferedMsg) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	go func() {
		if !token.WaitTimeout(asyncPublishTimeout) {
			p.log.Warn("publish timeout", "topic", msg.topic)
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("publish failed", "topic", msg.topic, "err", err)
		}
	}()
}

// onConnect replays everything buffered while disconnected, oldest first.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	dropped := p.buf.dropped
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	p.log.Info("connected", "replay", len(msgs), "dropped", dropped)
	for _, m := range msgs {
		p.publishAsync(m)
	}
}
