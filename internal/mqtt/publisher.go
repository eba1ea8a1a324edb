// Package mqtt forwards audit events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/mooglejp/atomcam_tools/onvif-server/internal/audit"
)

const connectTimeout = 5 * time.Second

// Options configures the broker connection
type Options struct {
	Broker   string
	Topic    string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Publisher is an audit.Sink publishing each event as JSON on one topic.
type Publisher struct {
	client paho.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewPublisher connects to the broker. The client reconnects on its own
// after the first successful connection.
func NewPublisher(opts Options, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("onvif-server-%d", time.Now().Unix())
	}

	co := paho.NewClientOptions()
	co.AddBroker(opts.Broker)
	co.SetClientID(clientID)
	co.SetConnectTimeout(connectTimeout)
	co.SetAutoReconnect(true)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", zap.String("broker", opts.Broker), zap.Error(err))
	})

	client := paho.NewClient(co)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", opts.Broker, err)
	}
	logger.Info("mqtt audit sink connected", zap.String("broker", opts.Broker), zap.String("topic", opts.Topic))

	return newPublisher(client, opts.Topic, opts.QoS, logger), nil
}

func newPublisher(client paho.Client, topic string, qos byte, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, topic: topic, qos: qos, logger: logger}
}

func (p *Publisher) Name() string {
	return "mqtt"
}

// Write implements audit.Sink.
func (p *Publisher) Write(ctx context.Context, e audit.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish MQTT message: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
	p.logger.Info("mqtt audit sink disconnected", zap.String("topic", p.topic))
}
