package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ponytojas/dht-logger/config"
	"github.com/ponytojas/dht-logger/internal/codec"
	"github.com/ponytojas/dht-logger/internal/dispatch"
)

var errPublishTimeout = errors.New("failed to publish due to timeout reached")

var _ dispatch.Sender = (*Publisher)(nil)

// Publisher sends compact snapshots to an MQTT topic
type Publisher struct {
	client    mqtt.Client
	brokerURL string
	topic     string
	qos       byte
	timeout   time.Duration
	logger    *slog.Logger
}

// NewPublisher creates a new MQTT publisher
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	opts := mqtt.NewClientOptions()
	brokerURL := cfg.GetMQTTBrokerURL()
	opts.AddBroker(brokerURL)
	opts.SetClientID(cfg.MQTT.ClientID)

	// Configure TLS if using SSL or HTTPS
	if strings.HasPrefix(brokerURL, "ssl://") || strings.HasPrefix(brokerURL, "wss://") {
		logger.Info("Configuring TLS for secure connection", slog.String("broker", brokerURL))
		tlsConfig := &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
		opts.SetTLSConfig(tlsConfig)
	}

	if cfg.MQTT.Username != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.Warn("Connection to MQTT broker lost", slog.Any("error", err))
	})
	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Info("Attempting to reconnect to MQTT broker...")
	})

	return newPublisher(mqtt.NewClient(opts), brokerURL, cfg.MQTT.Topic, cfg.MQTT.QoS, cfg.MQTT.Timeout, logger)
}

func newPublisher(client mqtt.Client, brokerURL, topic string, qos byte, timeout time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:    client,
		brokerURL: brokerURL,
		topic:     topic,
		qos:       qos,
		timeout:   timeout,
		logger:    logger,
	}
}

// Connect connects to the MQTT broker
func (p *Publisher) Connect() error {
	token := p.client.Connect()
	if !token.WaitTimeout(p.timeout) {
		// The client keeps retrying in the background.
		p.logger.Warn("MQTT broker not reachable yet, retrying in background", slog.String("broker", p.brokerURL))
		return nil
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	p.logger.Info("Connected to MQTT broker", slog.String("broker", p.brokerURL))
	return nil
}

// Name returns the mqtt channel name
func (p *Publisher) Name() string {
	return "mqtt://" + p.topic
}

// Format returns codec.Compact
func (p *Publisher) Format() codec.Format {
	return codec.Compact
}

// Send publishes payload to the configured topic
func (p *Publisher) Send(_ context.Context, payload []byte) error {
	token := p.client.Publish(p.topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return errPublishTimeout
	}
	return token.Error()
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() error {
	p.client.Disconnect(250)
	p.logger.Info("Disconnected from MQTT broker")
	return nil
}
