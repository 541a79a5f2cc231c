package mqtt

import (
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/boiler-controller/internal/logging"
	"github.com/sweeney/boiler-controller/internal/store"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool { return t.complete }

func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (t *fakeToken) Error() error { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	open         bool
	err          error
	stall        bool
	sent         []published
	disconnected bool
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, published{topic, qos, retained, payload.([]byte)})
	return &fakeToken{err: c.err, complete: !c.stall}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func newTestPublisher(c *fakeClient) *RealPublisher {
	return &RealPublisher{
		client: c,
		log:    logging.Discard(),
		buf:    newRingBuffer(10, logging.Discard()),
	}
}

var testSample = store.Sample{
	Timestamp:    time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC),
	Temperature:  90,
	Proportional: 5,
	Integral:     2.5,
	DutyCycle:    50.25,
}

func TestRealPublisherSendsWhenConnected(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	if err := p.PublishSample(testSample); err != nil {
		t.Fatalf("PublishSample: %v", err)
	}
	if err := p.PublishSystem(SystemEvent{Timestamp: testSample.Timestamp, Event: EventStartup, Retained: true}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(c.sent) != 2 {
		t.Fatalf("sent: got %d, want 2", len(c.sent))
	}
	if c.sent[0].topic != TopicSamples || c.sent[0].qos != 0 || c.sent[0].retained {
		t.Errorf("sample message: got %+v", c.sent[0])
	}
	if c.sent[1].topic != TopicSystem || c.sent[1].qos != 1 || !c.sent[1].retained {
		t.Errorf("system message: got %+v", c.sent[1])
	}
	if !p.IsConnected() {
		t.Error("expected IsConnected=true")
	}
}

func TestRealPublisherBuffersWhileOffline(t *testing.T) {
	c := &fakeClient{}
	p := newTestPublisher(c)

	for i := 0; i < 3; i++ {
		if err := p.PublishSample(testSample); err != nil {
			t.Fatalf("PublishSample while offline should not fail: %v", err)
		}
	}
	if len(c.sent) != 0 {
		t.Errorf("nothing should be sent while offline, got %d", len(c.sent))
	}
	if p.Buffered() != 3 {
		t.Errorf("Buffered: got %d, want 3", p.Buffered())
	}

	var changes []bool
	p.onChange = func(up bool) { changes = append(changes, up) }
	c.open = true
	p.onConnect()

	if len(c.sent) != 3 {
		t.Errorf("replayed: got %d, want 3", len(c.sent))
	}
	if p.Buffered() != 0 {
		t.Errorf("Buffered after replay: got %d", p.Buffered())
	}
	if len(changes) != 1 || !changes[0] {
		t.Errorf("connection changes: got %v", changes)
	}
}

func TestRealPublisherReconnectAnnounced(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)

	p.onConnect()
	if len(c.sent) != 0 {
		t.Fatalf("first connect should not announce, sent %d", len(c.sent))
	}

	p.onConnectionLost(errors.New("EOF"))
	p.onConnect()
	if len(c.sent) != 1 || c.sent[0].topic != TopicSystem {
		t.Fatalf("expected one RECONNECTED message, got %+v", c.sent)
	}
}

func TestRealPublisherErrors(t *testing.T) {
	c := &fakeClient{open: true, err: errors.New("not authorized")}
	p := newTestPublisher(c)
	if err := p.PublishSample(testSample); err == nil {
		t.Error("expected publish error")
	}

	c = &fakeClient{open: true, stall: true}
	p = newTestPublisher(c)
	if err := p.PublishSystem(SystemEvent{Event: EventShutdown}); err == nil {
		t.Error("expected timeout error")
	}
}

func TestRealPublisherClose(t *testing.T) {
	c := &fakeClient{open: true}
	p := newTestPublisher(c)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !c.disconnected {
		t.Error("expected Disconnect to be called")
	}
}

func TestNewRealPublisherRequiresBroker(t *testing.T) {
	if _, err := NewRealPublisher(Options{}); err == nil {
		t.Error("expected error for empty broker")
	}
}
