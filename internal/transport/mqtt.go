// Package transport connects the coach to the vehicle over MQTT: it
// subscribes to telemetry and session control, and publishes cues and a
// status heartbeat.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/trackcoach/internal/cue"
	"github.com/banshee-data/trackcoach/internal/timeutil"
)

// Status values published on the status topic.
const (
	StatusConnected = "connected"
	StatusAlive     = "alive"
)

// Options configures the MQTT client.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string

	TelemetryTopic string
	ControlTopic   string
	CuesTopic      string
	StatusTopic    string

	// KeepAlive defaults to 30s, PublishTimeout to 5s.
	KeepAlive      time.Duration
	PublishTimeout time.Duration

	// Clock stamps heartbeats; defaults to the wall clock.
	Clock timeutil.Clock

	// Logf receives connection events; defaults to log.Printf.
	Logf func(format string, v ...interface{})
}

// Handler receives raw payloads from the subscribed topics.
type Handler interface {
	HandleTelemetry(payload []byte)
	HandleControl(payload []byte)
}

// StatusMessage is the heartbeat payload.
type StatusMessage struct {
	TS     float64 `json:"ts"`
	Status string  `json:"status"`
}

// Client is a connected MQTT session.
type Client struct {
	opts    Options
	handler Handler
	client  mqtt.Client
}

// usesTLS reports whether the broker URL scheme requires TLS.
func usesTLS(broker string) bool {
	u, err := url.Parse(broker)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "tls", "ssl", "mqtts", "wss":
		return true
	}
	return false
}

func (o *Options) normalize() {
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = timeutil.RealClock{}
	}
	if o.Logf == nil {
		o.Logf = log.Printf
	}
}

// NewClient builds a client for opts. Call Connect to start it.
func NewClient(opts Options, h Handler) *Client {
	return newClient(opts, h, mqtt.NewClient)
}

func newClient(opts Options, h Handler, factory func(*mqtt.ClientOptions) mqtt.Client) *Client {
	opts.normalize()
	c := &Client{opts: opts, handler: h}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			opts.Logf("[MQTT] connection lost: %v", err)
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	if usesTLS(opts.Broker) {
		co.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c.client = factory(co)
	return c
}

// Connect dials the broker and waits for the first connection attempt or
// for ctx to end.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", c.opts.Broker, err)
	}
	return nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.opts.Logf("[MQTT] connected to %s", c.opts.Broker)
	for _, topic := range []string{c.opts.TelemetryTopic, c.opts.ControlTopic} {
		token := client.Subscribe(topic, 0, c.onMessage)
		if !token.WaitTimeout(c.opts.PublishTimeout) {
			c.opts.Logf("[MQTT] subscribe %s timed out after %s", topic, c.opts.PublishTimeout)
		} else if err := token.Error(); err != nil {
			c.opts.Logf("[MQTT] subscribe %s failed: %v", topic, err)
		}
	}
	if err := c.Heartbeat(StatusConnected); err != nil {
		c.opts.Logf("[MQTT] %v", err)
	}
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c.dispatch(msg.Topic(), msg.Payload())
}

// dispatch routes a payload by topic. Control wins when both topics match.
func (c *Client) dispatch(topic string, payload []byte) {
	switch topic {
	case c.opts.ControlTopic:
		c.handler.HandleControl(payload)
	case c.opts.TelemetryTopic:
		c.handler.HandleTelemetry(payload)
	}
}

func (c *Client) publishJSON(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", topic, err)
	}
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(c.opts.PublishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishCue publishes c on the cues topic.
func (c *Client) PublishCue(cu *cue.Cue) error {
	if cu == nil {
		return errors.New("nil cue")
	}
	return c.publishJSON(c.opts.CuesTopic, cu)
}

// Heartbeat publishes a status message.
func (c *Client) Heartbeat(status string) error {
	return c.publishJSON(c.opts.StatusTopic, StatusMessage{
		TS:     timeutil.UnixSeconds(c.opts.Clock.Now()),
		Status: status,
	})
}

// IsConnected reports whether the broker connection is up.
func (c *Client) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects, allowing 250ms for in-flight work.
func (c *Client) Close() {
	c.client.Disconnect(250)
}
