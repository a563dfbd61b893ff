package mirror

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ghalamif/TelemFlow/internal/domain"
	"github.com/ghalamif/TelemFlow/internal/ports"
)

var (
	errNotConnected   = errors.New("mirror: broker not connected")
	errPublishTimeout = errors.New("mirror: publish timed out")
)

type Config struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Topic          string        `yaml:"topic"`
	QoS            byte          `yaml:"qos"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

func (c *Config) ApplyDefaults() {
	if c.ClientID == "" {
		c.ClientID = fmt.Sprintf("telemflow-%d", time.Now().Unix())
	}
	if c.Topic == "" {
		c.Topic = "telemflow/samples"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 250 * time.Millisecond
	}
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("%w: mirror.broker is required when the mirror is enabled", domain.ErrConfiguration)
	}
	if c.QoS > 2 {
		return fmt.Errorf("%w: mirror.qos must be 0, 1 or 2", domain.ErrConfiguration)
	}
	if strings.ContainsAny(c.Topic, "+#") {
		return fmt.Errorf("%w: mirror.topic %q must not contain wildcards", domain.ErrConfiguration, c.Topic)
	}
	return nil
}

// client is the part of mqtt.Client the mirror needs.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTMirror publishes every accepted sample as JSON to one MQTT topic.
type MQTTMirror struct {
	cfg    Config
	client client
}

// Dial connects to the broker. The client reconnects on its own afterwards,
// and samples published while disconnected are reported as failures.
func Dial(cfg Config, obs ports.Observability) (*MQTTMirror, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.OnConnect = func(mqtt.Client) {
		if obs != nil {
			obs.LogInfo("mirror_connected", ports.Field{Key: "broker", Value: cfg.Broker})
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		if obs != nil {
			obs.LogError("mirror_connection_lost", err, ports.Field{Key: "broker", Value: cfg.Broker})
		}
	}

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.ConnectTimeout) {
		c.Disconnect(0)
		return nil, fmt.Errorf("mirror: connect %s: timed out after %s", cfg.Broker, cfg.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mirror: connect %s: %w", cfg.Broker, err)
	}
	return newMQTTMirror(cfg, c), nil
}

func newMQTTMirror(cfg Config, c client) *MQTTMirror {
	return &MQTTMirror{cfg: cfg, client: c}
}

type payload struct {
	Seq       uint64             `json:"seq"`
	Timestamp string             `json:"ts"`
	Values    map[string]float64 `json:"values"`
	Error     string             `json:"error,omitempty"`
}

// Encode renders s as the JSON document published on the topic.
func Encode(s *domain.Sample) ([]byte, error) {
	return json.Marshal(payload{
		Seq:       s.Seq,
		Timestamp: s.Timestamp.Format(time.RFC3339),
		Values:    s.Values,
		Error:     s.Error,
	})
}

func (m *MQTTMirror) Publish(s *domain.Sample) error {
	if !m.client.IsConnectionOpen() {
		return errNotConnected
	}
	body, err := Encode(s)
	if err != nil {
		return fmt.Errorf("mirror: encode seq %d: %w", s.Seq, err)
	}
	tok := m.client.Publish(m.cfg.Topic, m.cfg.QoS, false, body)
	if !tok.WaitTimeout(m.cfg.PublishTimeout) {
		return errPublishTimeout
	}
	return tok.Error()
}

func (m *MQTTMirror) Name() string { return "mqtt:" + m.cfg.Topic }

func (m *MQTTMirror) Close() error {
	m.client.Disconnect(250)
	return nil
}

var _ ports.Mirror = (*MQTTMirror)(nil)
