// Package mqtt publishes a drone's telemetry events to an MQTT broker, one
// message per event, on "{TopicPrefix}/{NodeId}/events".
//
// Adapted from the teacher's transport/mqtt.Transport: the same
// paho.mqtt.golang client configuration (auto-reconnect, connect retry,
// state-change handlers) and the same Config-struct/slog.WithGroup idiom,
// narrowed to publish-only since telemetry never flows back from the
// controller, and carrying telemetry.Event payloads instead of raw MeshCore
// packet bytes.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/relaymesh/dronecore/core/mesh"
	"github.com/relaymesh/dronecore/device/telemetry"
	"github.com/relaymesh/dronecore/identity"
	"github.com/relaymesh/dronecore/transport"
)

var _ transport.Connector = (*EventPublisher)(nil)

// DefaultTopicPrefix is the default MQTT topic prefix for telemetry events.
const DefaultTopicPrefix = "dronecore"

// Config holds the configuration for an MQTT event publisher.
type Config struct {
	// Broker is the MQTT broker URL (e.g. "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is
	// generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "dronecore").
	TopicPrefix string
	// NodeId identifies the publishing drone; events are published to
	// "{TopicPrefix}/{NodeId}/events".
	NodeId mesh.NodeId
	// Identity, if set, signs every published event so the controller can
	// authenticate its origin.
	Identity *identity.Identity
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// wireEvent is the JSON payload published for each telemetry.Event.
type wireEvent struct {
	Kind      string `json:"kind"`
	SessionId uint64 `json:"session_id"`
	FloodId   uint64 `json:"flood_id,omitempty"`
	Signature []byte `json:"signature,omitempty"`
}

// EventPublisher implements transport.Connector and publishes telemetry
// events over MQTT.
type EventPublisher struct {
	cfg          Config
	client       paho.Client
	log          *slog.Logger
	mu           sync.RWMutex
	connected    bool
	stateHandler transport.StateHandler
}

// New creates an EventPublisher with the given configuration.
func New(cfg Config) *EventPublisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &EventPublisher{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt").With("node", cfg.NodeId),
	}
}

// Start connects to the MQTT broker. The connection is closed when ctx is
// done.
func (p *EventPublisher) Start(ctx context.Context) error {
	if p.cfg.Broker == "" {
		return errors.New("mqtt: broker URL is required")
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "dronecore-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnected).
		SetConnectionLostHandler(p.onConnectionLost).
		SetReconnectingHandler(p.onReconnecting)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	p.client = paho.NewClient(opts)

	token := p.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("mqtt: connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt: connecting to broker: %w", token.Error())
	}
	go func() {
		<-ctx.Done()
		_ = p.Stop()
	}()
	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (p *EventPublisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Disconnect(1000)
		p.connected = false
	}
	return nil
}

// IsConnected reports whether the publisher currently has a live broker
// connection.
func (p *EventPublisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// SetStateHandler sets the callback invoked on connection state changes.
func (p *EventPublisher) SetStateHandler(fn transport.StateHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateHandler = fn
}

// Publish encodes e and publishes it to this drone's events topic. If the
// publisher carries an Identity, the payload is signed.
func (p *EventPublisher) Publish(e telemetry.Event) error {
	if !p.IsConnected() {
		return errors.New("mqtt: not connected")
	}

	wire := wireEvent{Kind: e.Kind.String()}
	if e.Packet != nil {
		wire.SessionId = e.Packet.SessionId
		wire.FloodId = e.Packet.FloodId
	}
	if p.cfg.Identity != nil {
		wire.Signature = p.cfg.Identity.Sign(signaturePayload(wire))
	}

	payload, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("mqtt: encoding event: %w", err)
	}

	token := p.client.Publish(p.topic(), 0, false, payload)
	if !token.WaitTimeout(10 * time.Second) {
		return errors.New("mqtt: timeout publishing event")
	}
	return token.Error()
}

func signaturePayload(w wireEvent) []byte {
	return fmt.Appendf(nil, "%s|%d|%d", w.Kind, w.SessionId, w.FloodId)
}

func (p *EventPublisher) topic() string {
	return fmt.Sprintf("%s/%s/events", p.cfg.TopicPrefix, p.cfg.NodeId)
}

func (p *EventPublisher) onConnected(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	handler := p.stateHandler
	p.mu.Unlock()

	p.log.Info("connected to MQTT broker", "broker", p.cfg.Broker)
	if handler != nil {
		handler(transport.EventConnected)
	}
}

func (p *EventPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	handler := p.stateHandler
	p.mu.Unlock()

	p.log.Error("MQTT connection lost", "error", err)
	if handler != nil {
		handler(transport.EventDisconnected)
	}
}

func (p *EventPublisher) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	p.mu.RLock()
	handler := p.stateHandler
	p.mu.RUnlock()

	p.log.Info("reconnecting to MQTT broker")
	if handler != nil {
		handler(transport.EventReconnecting)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
