package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/afroash/radar-monitor/internal/models"
	"github.com/afroash/radar-monitor/internal/storage"
)

// ConnectionState represents the current state of the subscription
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateSubscribed
)

func (cs ConnectionState) String() string {
	switch cs {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// SubscriberConfig holds configuration for the subscriber
type SubscriberConfig struct {
	BrokerURL            string
	ClientID             string
	Topic                string
	KeepAlive            time.Duration
	ConnectTimeout       time.Duration
	ReconnectInterval    time.Duration
	MaxReconnectInterval time.Duration
}

// SubscriberStats tracks message handling statistics
type SubscriberStats struct {
	Received      int64     `json:"received"`
	Stored        int64     `json:"stored"`
	DecodeFailed  int64     `json:"decode_failed"`
	PersistFailed int64     `json:"persist_failed"`
	LastMessage   time.Time `json:"last_message,omitempty"`
}

// Subscriber maintains one logical subscription to the sensor topic and
// persists every decodable message. It owns its broker connection and is
// constructed once at process start; Run blocks until the context is
// cancelled, reconnecting with backoff whenever the broker drops us.
type Subscriber struct {
	cfg    SubscriberConfig
	store  storage.Store
	logger zerolog.Logger

	state                    ConnectionState
	stateMutex               sync.RWMutex
	currentReconnectInterval time.Duration

	statsMutex sync.RWMutex
	stats      SubscriberStats
}

// NewSubscriber creates a new subscriber for the configured topic
func NewSubscriber(cfg SubscriberConfig, store storage.Store, logger zerolog.Logger) *Subscriber {
	return &Subscriber{
		cfg:                      cfg,
		store:                    store,
		logger:                   logger,
		state:                    StateDisconnected,
		currentReconnectInterval: cfg.ReconnectInterval,
	}
}

// setState safely updates the connection state
func (s *Subscriber) setState(state ConnectionState) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()
	s.state = state
	s.logger.Info().Str("state", state.String()).Msg("Subscription state updated")
}

// State returns the current connection state
func (s *Subscriber) State() ConnectionState {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// Stats returns a copy of current message handling statistics
func (s *Subscriber) Stats() SubscriberStats {
	s.statsMutex.RLock()
	defer s.statsMutex.RUnlock()
	return s.stats
}

// Run starts the subscription with auto-reconnect.
// Blocks until the context is cancelled. A failed connect or a dropped
// connection never propagates out of the loop; the subscriber waits with
// exponential backoff and tries again.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		client, lost, err := s.connect()
		if err != nil {
			s.logger.Warn().Err(err).Str("broker", s.cfg.BrokerURL).Msg("Connection failed")
			s.waitBeforeReconnect(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			s.disconnect(client)
			return ctx.Err()
		case <-lost:
			s.logger.Info().Msg("Connection lost, will reconnect")
			s.waitBeforeReconnect(ctx)
		}
	}
}

// connect establishes a fresh broker session and subscribes to the topic.
// The returned channel is closed when the connection is lost.
func (s *Subscriber) connect() (mqtt.Client, <-chan struct{}, error) {
	s.setState(StateConnecting)
	s.logger.Info().Str("broker", s.cfg.BrokerURL).Str("topic", s.cfg.Topic).Msg("Connecting to broker...")

	lost := make(chan struct{})

	opts := mqtt.NewClientOptions().
		AddBroker(s.cfg.BrokerURL).
		SetClientID(s.cfg.ClientID).
		SetKeepAlive(s.cfg.KeepAlive).
		SetConnectTimeout(s.cfg.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(false)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Warn().Err(err).Msg("Broker connection lost")
		s.setState(StateDisconnected)
		close(lost)
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(s.cfg.ConnectTimeout) {
		s.setState(StateDisconnected)
		return nil, nil, fmt.Errorf("connect timed out after %s", s.cfg.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		s.setState(StateDisconnected)
		return nil, nil, fmt.Errorf("connect failed: %w", err)
	}

	if token := client.Subscribe(s.cfg.Topic, 1, s.HandleMessage); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		s.setState(StateDisconnected)
		return nil, nil, fmt.Errorf("subscribe failed: %w", token.Error())
	}

	s.setState(StateSubscribed)
	s.currentReconnectInterval = s.cfg.ReconnectInterval // reset backoff
	s.logger.Info().Str("topic", s.cfg.Topic).Msg("Subscribed to topic")

	return client, lost, nil
}

// waitBeforeReconnect waits before next reconnection attempt with exponential backoff
func (s *Subscriber) waitBeforeReconnect(ctx context.Context) {
	s.logger.Info().Dur("delay", s.currentReconnectInterval).Msg("Waiting before reconnect")
	select {
	case <-time.After(s.currentReconnectInterval):
	case <-ctx.Done():
		return
	}
	s.currentReconnectInterval *= 2
	if s.currentReconnectInterval > s.cfg.MaxReconnectInterval {
		s.currentReconnectInterval = s.cfg.MaxReconnectInterval
	}
}

// disconnect closes the broker session, allowing in-flight handlers to finish
func (s *Subscriber) disconnect(client mqtt.Client) {
	client.Unsubscribe(s.cfg.Topic)
	client.Disconnect(250)
	s.setState(StateDisconnected)
	s.logger.Info().Msg("Disconnected from broker")
}

// HandleMessage processes one inbound message: decode, then persist.
// Invoked sequentially by the broker client's delivery loop. A malformed
// payload or a failed insert drops the message and keeps the subscription
// alive.
func (s *Subscriber) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	s.statsMutex.Lock()
	s.stats.Received++
	s.stats.LastMessage = time.Now()
	s.statsMutex.Unlock()

	reading, err := models.DecodePayload(msg.Payload())
	if err != nil {
		s.statsMutex.Lock()
		s.stats.DecodeFailed++
		s.statsMutex.Unlock()
		s.logger.Warn().
			Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(msg.Payload())).
			Msg("Message dropped: decode failed")
		return
	}

	if err := s.store.InsertReading(reading); err != nil {
		s.statsMutex.Lock()
		s.stats.PersistFailed++
		s.statsMutex.Unlock()
		s.logger.Error().
			Err(err).
			Str("topic", msg.Topic()).
			Str("correlation_id", reading.CorrelationID).
			Msg("Message dropped: persist failed")
		return
	}

	s.statsMutex.Lock()
	s.stats.Stored++
	s.statsMutex.Unlock()

	s.logger.Debug().
		Float64("distance", reading.Distance).
		Float64("angle", reading.Angle).
		Str("device_id", reading.DeviceID).
		Msg("Reading stored")
}
