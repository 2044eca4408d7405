package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/smazurov/lwalight/internal/config"
	"github.com/smazurov/lwalight/internal/status"
)

// DefaultMQTTMaxAge is how long a retained or published status stays valid.
const DefaultMQTTMaxAge = 5 * time.Minute

// mqttSource subscribes to a status topic and reports the latest payload.
type mqttSource struct {
	id     string
	topic  string
	key    string
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
	opts   *mqtt.ClientOptions

	// dial connects the client; replaced in tests.
	dial func(ctx context.Context) error

	mu       sync.Mutex
	client   mqtt.Client
	payload  string
	received time.Time
}

func newMQTT(cfg config.SourceConfig, now func() time.Time, logger *slog.Logger) *mqttSource {
	maxAge := cfg.MaxAge.D()
	if maxAge <= 0 {
		maxAge = DefaultMQTTMaxAge
	}
	key := cfg.Key
	if key == "" {
		key = "status"
	}
	s := &mqttSource{
		id:     cfg.ID,
		topic:  cfg.Topic,
		key:    key,
		maxAge: maxAge,
		now:    now,
		logger: logger,
	}

	s.opts = mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("lwalight-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOnConnectHandler(s.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "broker", cfg.Broker, "error", err)
		})
	if cfg.Username != "" {
		s.opts.SetUsername(cfg.Username)
		s.opts.SetPassword(cfg.Password)
	}
	s.dial = s.connect
	return s
}

func (s *mqttSource) ID() string { return s.id }

// connect establishes the broker connection once; paho reconnects on its own afterwards.
func (s *mqttSource) connect(ctx context.Context) error {
	s.mu.Lock()
	if s.client != nil {
		s.mu.Unlock()
		return nil
	}
	client := mqtt.NewClient(s.opts)
	s.mu.Unlock()

	wait := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	token := client.Connect()
	if !token.WaitTimeout(wait) {
		client.Disconnect(0)
		return context.DeadlineExceeded
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		// Lost a race with a concurrent fetch
		client.Disconnect(0)
		return nil
	}
	s.client = client
	return nil
}

// subscribe runs on every (re)connect so the subscription survives broker restarts.
func (s *mqttSource) subscribe(c mqtt.Client) {
	token := c.Subscribe(s.topic, 1, s.onMessage)
	go func() {
		if token.WaitTimeout(10*time.Second) && token.Error() != nil {
			s.logger.Warn("MQTT subscribe failed", "topic", s.topic, "error", token.Error())
		}
	}()
}

func (s *mqttSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload = string(msg.Payload())
	s.received = s.now()
}

func (s *mqttSource) Fetch(ctx context.Context) (Observation, error) {
	if err := s.dial(ctx); err != nil {
		return Observation{}, classify(ctx, err)
	}

	s.mu.Lock()
	payload, received := s.payload, s.received
	s.mu.Unlock()

	if received.IsZero() {
		return Observation{}, unavailable("no message on %s yet", s.topic)
	}
	if age := s.now().Sub(received); age > s.maxAge {
		return Observation{}, unavailable("last message on %s is %s old", s.topic, age.Truncate(time.Second))
	}

	raw, err := s.decode(payload)
	if err != nil {
		return Observation{}, unavailable("%s: %v", s.topic, err)
	}
	value, err := status.ParseValue(raw)
	if err != nil {
		return Observation{}, unavailable("%s: %v", s.topic, err)
	}
	return Observation{Value: value, Detail: raw}, nil
}

// decode accepts a bare value name or a JSON object carrying it under key.
func (s *mqttSource) decode(payload string) (string, error) {
	trimmed := strings.TrimSpace(payload)
	if !strings.HasPrefix(trimmed, "{") {
		return strings.Trim(trimmed, `"`), nil
	}
	doc := make(map[string]any)
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return "", err
	}
	return lookupString(doc, s.key)
}

// Close disconnects from the broker.
func (s *mqttSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		s.client.Disconnect(250)
		s.client = nil
	}
	return nil
}
