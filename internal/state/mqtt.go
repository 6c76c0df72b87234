package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTConfig configures the MQTT mirror
type MQTTConfig struct {
	Broker       string
	ClientID     string
	Username     string
	Password     string
	TopicPrefix  string
	QoS          byte
	Retain       bool
	WriteTimeout time.Duration
}

// mqttPublisher is the part of mqtt.Client the store needs
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTStore mirrors objects and values to an MQTT broker.
// Objects go to <prefix>/<key>/meta, values to <prefix>/<key>.
type MQTTStore struct {
	client  mqttPublisher
	conn    mqtt.Client
	cfg     MQTTConfig
	logger  *zap.Logger
	mu      sync.RWMutex
	current map[string]State
}

// NewMQTTStore verbindet sich mit dem Broker
func NewMQTTStore(cfg MQTTConfig, logger *zap.Logger) (*MQTTStore, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("iolink-bridge-%d", time.Now().UnixNano())
	}
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(30 * time.Second)
	opts.SetMaxReconnectInterval(5 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetWriteTimeout(cfg.WriteTimeout)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker), zap.String("client_id", clientID))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}

	store := newMQTTStore(client, cfg, logger)
	store.conn = client
	return store, nil
}

func newMQTTStore(client mqttPublisher, cfg MQTTConfig, logger *zap.Logger) *MQTTStore {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/")
	return &MQTTStore{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		current: make(map[string]State),
	}
}

// Topic returns the value topic of a key. Dots in keys become levels.
func (s *MQTTStore) Topic(key string) string {
	path := strings.ReplaceAll(key, ".", "/")
	if s.cfg.TopicPrefix == "" {
		return path
	}
	return s.cfg.TopicPrefix + "/" + path
}

func (s *MQTTStore) DeclareObject(ctx context.Context, meta Meta) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	// meta is always retained so late subscribers see units and types
	return s.publish(s.Topic(meta.Key)+"/meta", true, payload)
}

func (s *MQTTStore) SetState(ctx context.Context, key string, value interface{}, ack bool) error {
	st := State{Key: key, Value: value, Ack: ack, Timestamp: time.Now()}
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := s.publish(s.Topic(key), s.cfg.Retain, payload); err != nil {
		return err
	}

	s.mu.Lock()
	s.current[key] = st
	s.mu.Unlock()
	return nil
}

// SetStates encodes the whole batch before publishing anything. The broker
// has no transactions, so a publish failure mid-batch leaves earlier topics
// updated; the cache only holds what was published.
func (s *MQTTStore) SetStates(ctx context.Context, states []State) error {
	now := time.Now()
	payloads := make([][]byte, len(states))
	for i := range states {
		states[i].Timestamp = now
		payload, err := json.Marshal(states[i])
		if err != nil {
			return fmt.Errorf("marshal state %s: %w", states[i].Key, err)
		}
		payloads[i] = payload
	}

	for i, st := range states {
		if err := s.publish(s.Topic(st.Key), s.cfg.Retain, payloads[i]); err != nil {
			return err
		}
		s.mu.Lock()
		s.current[st.Key] = st
		s.mu.Unlock()
	}
	return nil
}

// GetState returns the last value this store published for key
func (s *MQTTStore) GetState(ctx context.Context, key string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.current[key]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (s *MQTTStore) publish(topic string, retained bool, payload []byte) error {
	token := s.client.Publish(topic, s.cfg.QoS, retained, payload)
	if !token.WaitTimeout(s.cfg.WriteTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	s.logger.Debug("MQTT published", zap.String("topic", topic))
	return nil
}

// Close disconnects from the broker
func (s *MQTTStore) Close() {
	if s.conn != nil && s.conn.IsConnected() {
		s.conn.Disconnect(250)
	}
}
