package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/reflex-trigger/internal/trigger"
)

// DefaultBufferSize is how many messages are kept while the broker is unreachable.
const DefaultBufferSize = 256

const publishTimeout = 5 * time.Second

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int

	// OnConnectionChange, if set, is called with true after every (re)connect
	// and with false when the connection is lost.
	OnConnectionChange func(connected bool)

	Log zerolog.Logger
}

// RealPublisher publishes to an actual MQTT broker. While the connection is
// down, messages go to a ring buffer and are replayed in order on reconnect.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger

	mu  sync.Mutex
	buf *ringBuffer

	onChange func(bool)
}

// NewRealPublisher creates a publisher for the given broker. The connection is
// retried in the background, so an unreachable broker is not an error.
func NewRealPublisher(opt Options) (*RealPublisher, error) {
	if opt.Broker == "" {
		return nil, errors.New("mqtt: broker address is empty")
	}
	if opt.ClientID == "" {
		opt.ClientID = "reflex-trigger"
	}
	if opt.BufferSize <= 0 {
		opt.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		log:      opt.Log,
		buf:      newRingBuffer(opt.BufferSize),
		onChange: opt.OnConnectionChange,
	}

	opts := paho.NewClientOptions().
		AddBroker(opt.Broker).
		SetClientID(opt.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(WillPayload(time.Now())), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		p.log.Warn().Str("broker", opt.Broker).Msg("broker not reachable yet, buffering until connected")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.log.Info().Msg("connected to broker")
	if p.onChange != nil {
		p.onChange(true)
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) > 0 {
		p.log.Info().Int("count", len(pending)).Msg("replaying buffered messages")
	}
	for _, m := range pending {
		c.Publish(m.topic, m.qos, m.retained, m.payload)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.log.Warn().Err(err).Msg("connection to broker lost")
	if p.onChange != nil {
		p.onChange(false)
	}
}

// IsConnected reports whether the broker connection is currently open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		firstDrop := p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		if firstDrop {
			p.log.Warn().Int("capacity", p.buf.capacity).Msg("offline buffer full, dropping oldest")
		}
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Publish sends a detection to the MQTT broker.
func (p *RealPublisher) Publish(o trigger.Outcome) error {
	payload, err := FormatPayload(o)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) so shutdown events are delivered
	return p.send(TopicSystem, 1, event.Retained, payload)
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
