package mqtt

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/kiln-control/internal/control"
)

const (
	publishTimeout = 5 * time.Second
	connectTimeout = 10 * time.Second
	offlineBacklog = 256
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while disconnected are buffered and replayed on reconnect so a broker
// restart does not lose the fault/shutdown trail.
type RealPublisher struct {
	client paho.Client

	mu   sync.Mutex
	buf  *ringBuffer
	sink CommandSink
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker string) (*RealPublisher, error) {
	p := &RealPublisher{buf: newRingBuffer(offlineBacklog)}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("kiln-control").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// PublishReading sends a per-tick reading. QoS 0, not retained:
// readings are frequent and superseded every tick.
func (p *RealPublisher) PublishReading(r control.Reading) error {
	payload, err := FormatReadingPayload(r)
	if err != nil {
		return fmt.Errorf("format reading payload: %w", err)
	}
	return p.publish(TopicReadings, 0, false, payload)
}

// PublishSystem sends a lifecycle event. QoS 1: faults and shutdowns
// must survive a flaky link.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnected() {
		p.mu.Lock()
		p.buf.push(queuedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// SubscribeCommands routes the command topics into sink. Subscriptions
// are re-established automatically on reconnect.
func (p *RealPublisher) SubscribeCommands(sink CommandSink) error {
	p.mu.Lock()
	p.sink = sink
	p.mu.Unlock()
	return p.subscribe(sink)
}

func (p *RealPublisher) subscribe(sink CommandSink) error {
	handlers := map[string]paho.MessageHandler{
		TopicCmdSetpoint: func(_ paho.Client, m paho.Message) {
			if v, ok := parseCommandValue(m.Payload()); ok {
				sink.SetSetpoint(v)
			} else {
				log.Printf("mqtt: ignoring bad setpoint payload %q", m.Payload())
			}
		},
		TopicCmdPower: func(_ paho.Client, m paho.Message) {
			if v, ok := parseCommandValue(m.Payload()); ok {
				sink.SetPowerDirect(v)
			} else {
				log.Printf("mqtt: ignoring bad power payload %q", m.Payload())
			}
		},
		TopicCmdShutdown: func(_ paho.Client, m paho.Message) {
			sink.RequestShutdown()
		},
	}

	for topic, handler := range handlers {
		token := p.client.Subscribe(topic, 1, handler)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("subscribe %s: timeout", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func parseCommandValue(payload []byte) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// onConnect replays buffered telemetry and restores command
// subscriptions after a reconnect.
func (p *RealPublisher) onConnect(paho.Client) {
	p.mu.Lock()
	queued := p.buf.drainAll()
	sink := p.sink
	p.mu.Unlock()

	if len(queued) > 0 {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(queued))
	}
	for _, msg := range queued {
		token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			log.Printf("mqtt: replay to %s failed: %v", msg.topic, token.Error())
		}
	}

	if sink != nil {
		if err := p.subscribe(sink); err != nil {
			log.Printf("mqtt: resubscribe failed: %v", err)
		}
	}
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
