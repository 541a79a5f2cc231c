package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/boiler-controller/internal/store"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// DefaultBufferSize is the number of messages held while offline.
	DefaultBufferSize = 1000
)

// client is the subset of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int // default DefaultBufferSize
	Log        *logrus.Entry

	// OnConnectionChange, if set, is called whenever the link goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the broker is unreachable are buffered and replayed on reconnect.
type RealPublisher struct {
	client   client
	log      *logrus.Entry
	onChange func(bool)

	mu          sync.Mutex
	buf         *ringBuffer
	connectedAt time.Time // zero until the first connection
}

// NewRealPublisher creates a publisher for the given broker. It does not fail
// when the broker is unreachable: paho keeps retrying in the background and
// messages are buffered until then.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	p := &RealPublisher{
		log:      opts.Log,
		onChange: opts.OnConnectionChange,
		buf:      newRingBuffer(opts.BufferSize, opts.Log),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     EventShutdown,
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.onConnectionLost(err) })

	c := paho.NewClient(co)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		p.log.WithField("broker", opts.Broker).Warn("broker not reachable yet, buffering until connected")
	} else if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	reconnect := !p.connectedAt.IsZero()
	p.connectedAt = time.Now()
	p.mu.Unlock()

	p.log.Info("connected to broker")
	if p.onChange != nil {
		p.onChange(true)
	}

	// paho runs this handler on its own goroutine, so blocking on tokens is fine.
	if reconnect {
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: EventReconnected}); err != nil {
			p.log.WithError(err).Warn("publish reconnect event failed")
		}
	}
	p.flush()
}

func (p *RealPublisher) onConnectionLost(err error) {
	p.log.WithError(err).Warn("lost connection to broker")
	if p.onChange != nil {
		p.onChange(false)
	}
}

// flush replays buffered messages. Messages that fail are dropped.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if len(pending) == 0 {
		return
	}
	p.log.WithField("count", len(pending)).Info("replaying buffered messages")
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.WithError(err).WithField("topic", m.topic).Warn("replay failed")
		}
	}
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	return p.send(m)
}

// PublishSample sends a cycle sample at QoS 0.
func (p *RealPublisher) PublishSample(s store.Sample) error {
	payload, err := FormatPayload(s)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSamples, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker link is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

var _ Publisher = (*RealPublisher)(nil)
