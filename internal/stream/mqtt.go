package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"fleet-monitor/tracker/internal/logging"
)

// MQTTSource subscribes to its topics on every (re)connect. Paho invokes the
// message callback sequentially, which keeps per-topic order.
type MQTTSource struct {
	url      string
	clientID string
	topics   []string
	log      *slog.Logger

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTSource(url, clientID string, topics ...string) *MQTTSource {
	return &MQTTSource{
		url:      url,
		clientID: clientID,
		topics:   topics,
		log:      logging.Component("mqtt"),
	}
}

func (s *MQTTSource) Run(ctx context.Context, h Handler) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.url)
	opts.SetClientID(s.clientID + "-" + time.Now().Format("20060102150405"))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetOrderMatters(true)
	opts.OnConnect = func(c mqtt.Client) {
		for _, topic := range s.topics {
			token := c.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
				h(ctx, Message{Topic: m.Topic(), Payload: m.Payload()})
			})
			token.Wait()
			if token.Error() != nil {
				s.log.Error("subscribe failed", "topic", topic, "error", token.Error())
				continue
			}
			s.log.Info("subscribed", "topic", topic)
		}
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		s.log.Warn("connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	s.mu.Lock()
	s.client = client
	s.mu.Unlock()

	// With connect retry on, the token only completes once a broker accepts
	// the connection.
	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		client.Disconnect(250)
		return nil
	}
	if token.Error() != nil {
		return fmt.Errorf("mqtt connection failed: %w", token.Error())
	}

	<-ctx.Done()
	client.Disconnect(250)
	return nil
}

func (s *MQTTSource) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return errors.New("mqtt client not started")
	}
	if !s.client.IsConnectionOpen() {
		return errors.New("mqtt connection not open")
	}
	return nil
}

func (s *MQTTSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}
