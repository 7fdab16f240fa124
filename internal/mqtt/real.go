package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/sweeney/sousvide/internal/control"
)

// bufferCapacity bounds messages held while the broker is unreachable.
const bufferCapacity = 256

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client   paho.Client
	topics   Topics
	logger   *zap.SugaredLogger
	setpoint SetpointHandler

	mu  sync.Mutex
	out *outbox
}

// NewRealPublisher creates a publisher connected to the given broker.
// If setpoint is non-nil, commands on the setpoint topic are passed to it.
// An unreachable broker is not an error; the client keeps retrying.
func NewRealPublisher(opts Options, setpoint SetpointHandler, logger *zap.SugaredLogger) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "sousvide"
	}
	p := &RealPublisher{
		topics:   NewTopics(opts.TopicPrefix),
		logger:   logger,
		setpoint: setpoint,
		out:      newOutbox(bufferCapacity, logger),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(copts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warnf("mqtt: %s not reachable, retrying in background", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// Topics returns the topics the publisher uses.
func (p *RealPublisher) Topics() Topics {
	return p.topics
}

// Publish sends a control event to the MQTT broker.
func (p *RealPublisher) Publish(event control.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	if err := p.publish(bufferedMsg{topic: p.topics.Events, payload: payload}); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	msg := bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained}
	if err := p.publish(msg); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// BufferStats reports the offline outbox.
func (p *RealPublisher) BufferStats() BufferStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.stats()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.out.push(msg)
		p.mu.Unlock()
		return nil
	}
	return p.send(msg)
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("timeout on %s", msg.topic)
	}
	return token.Error()
}

// onConnect runs on every (re)connect in its own goroutine.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.logger.Infof("mqtt: connected")

	if p.setpoint != nil {
		token := c.Subscribe(p.topics.Setpoint, 1, p.onSetpoint)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			p.logger.Errorf("mqtt: subscribe %s: %v", p.topics.Setpoint, token.Error())
		}
	}

	p.mu.Lock()
	pending := p.out.drain()
	p.mu.Unlock()
	if len(pending) > 0 {
		p.logger.Infof("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, msg := range pending {
		if err := p.send(msg); err != nil {
			p.logger.Errorf("mqtt: replay: %v", err)
		}
	}
}

func (p *RealPublisher) onSetpoint(_ paho.Client, m paho.Message) {
	cmd, err := ParseSetpointCommand(m.Payload())
	if err != nil {
		p.logger.Warnf("mqtt: ignoring setpoint command: %v", err)
		return
	}
	cmd.Apply(p.setpoint)
}
