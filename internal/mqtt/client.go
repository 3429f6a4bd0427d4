// Package mqtt owns the remote command channel: the broker connection, its
// supervision, and the device's topic layout.
package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"poollight-controller/internal/config"
	"poollight-controller/internal/core"
	"poollight-controller/internal/status"
)

// pahoAPI is the slice of the paho client the wrapper drives, narrowed so
// tests can substitute a fake session.
type pahoAPI interface {
	Connect() mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnectionOpen() bool
	Disconnect(quiesce uint)
}

// Client wraps the paho client with the device's topic layout:
// announce on <base> (retained), commands in on <base>/<id>/in, status out
// on <base>/<id>/out (retained), availability on <base>/<id>/availability.
type Client struct {
	client   pahoAPI
	cfg      *config.Config
	commands core.CommandChannel
	limiter  *rate.Limiter
	log      zerolog.Logger

	deviceID   string
	baseTopic  string
	inTopic    string
	outTopic   string
	availTopic string
}

// NewClient builds a client for the device. Returns nil when MQTT is
// disabled in the config; callers treat a nil client as "offline mode".
func NewClient(cfg *config.Config, deviceID string, commands core.CommandChannel, log zerolog.Logger) *Client {
	if !cfg.MQTT.Enabled {
		return nil
	}

	base := cfg.MQTT.BaseTopic
	c := &Client{
		cfg:        cfg,
		commands:   commands,
		limiter:    rate.NewLimiter(rate.Limit(cfg.MQTT.CommandRateLimit), cfg.MQTT.CommandRateBurst),
		log:        log,
		deviceID:   deviceID,
		baseTopic:  base,
		inTopic:    fmt.Sprintf("%s/%s/in", base, deviceID),
		outTopic:   fmt.Sprintf("%s/%s/out", base, deviceID),
		availTopic: fmt.Sprintf("%s/%s/availability", base, deviceID),
	}

	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = deviceID
	}

	retry := config.Duration(cfg.Timing.ReconnectDelay)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.MQTT.Broker)
	opts.SetClientID(clientID)
	opts.SetUsername(cfg.MQTT.Username)
	opts.SetPassword(cfg.MQTT.Password)

	opts.SetKeepAlive(10 * time.Second)
	opts.SetPingTimeout(5 * time.Second)

	// The device must eventually recover no matter how long the broker is
	// gone: retry forever at a fixed interval, no exponential growth.
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(retry)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(retry)

	// The broker flips us to offline if we drop without saying goodbye.
	opts.SetWill(c.availTopic, "offline", 1, true)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warn().Err(err).Msg("Broker connection lost, retrying in background")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		c.log.Info().Msg("Attempting broker reconnect")
	})

	c.client = mqtt.NewClient(opts)
	return c
}

// Connect starts the connection loop.
func (c *Client) Connect() error {
	c.log.Info().Str("broker", c.cfg.MQTT.Broker).Msg("Starting broker connection loop")

	token := c.client.Connect()
	// With ConnectRetry enabled an error here means a configuration problem
	// (bad URL scheme etc.) rather than plain unavailability.
	if token.Wait() && token.Error() != nil {
		c.log.Error().Err(token.Error()).Msg("Initial broker connection error")
		return token.Error()
	}
	return nil
}

// Connected reports whether the command channel is usable right now. With
// ConnectRetry and AutoReconnect enabled, paho's IsConnected stays true the
// whole time the client is still dialing or retrying; IsConnectionOpen is
// true only while the link is actually up, which is what the agent loop's
// connectivity gate needs.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Disconnect announces offline and closes the socket. The offline publish
// only makes sense over a live link; Disconnect itself also stops a pending
// retry loop.
func (c *Client) Disconnect() {
	c.log.Info().Msg("Disconnecting from broker")

	if c.client.IsConnectionOpen() {
		token := c.client.Publish(c.availTopic, 1, true, "offline")
		if token.WaitTimeout(2 * time.Second) {
			if token.Error() != nil {
				c.log.Warn().Err(token.Error()).Msg("Failed to publish offline status")
			}
		} else {
			c.log.Warn().Msg("Timed out publishing offline status")
		}
	}

	c.client.Disconnect(250)
}

// PublishStatus publishes a retained status report on the device's out
// topic, so late subscribers always see the last known state.
func (c *Client) PublishStatus(rep status.Report) {
	if !c.client.IsConnectionOpen() {
		return
	}

	token := c.client.Publish(c.outTopic, 0, true, rep.Encode())

	// Don't block the agent loop on the publish, but don't leak the token
	// either.
	go func() {
		if token.WaitTimeout(5 * time.Second) {
			if token.Error() != nil {
				c.log.Warn().Err(token.Error()).Str("topic", c.outTopic).Msg("Status publish error")
			}
		} else {
			c.log.Warn().Str("topic", c.outTopic).Msg("Status publish timed out")
		}
	}()
}

func (c *Client) onConnect(client mqtt.Client) {
	c.log.Info().Msg("Connected to broker")
	c.establishSession(client)
}

// establishSession runs on every (re)connect: the subscription and the
// retained announcements must be re-established each time before commands
// flow.
func (c *Client) establishSession(s pahoAPI) {
	if token := s.Subscribe(c.inTopic, 1, c.handleInbound); token.Wait() && token.Error() != nil {
		c.log.Error().Err(token.Error()).Str("topic", c.inTopic).Msg("Subscribe failed")
	} else {
		c.log.Info().Str("topic", c.inTopic).Msg("Subscribed to command topic")
	}

	// Presence announcement on the bare base topic, retained, so the
	// companion app can discover the device id.
	s.Publish(c.baseTopic, 0, true, c.deviceID)
	s.Publish(c.availTopic, 1, true, "online")
}

// handleInbound runs on paho's delivery goroutine. It only decodes and
// enqueues; all state transitions happen on the agent loop.
func (c *Client) handleInbound(_ mqtt.Client, msg mqtt.Message) {
	if !c.limiter.Allow() {
		c.log.Warn().Str("topic", msg.Topic()).Msg("Command rate limit exceeded, dropping message")
		return
	}

	cmds, errs := core.ParseInbound(msg.Payload())
	for _, err := range errs {
		c.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Rejected inbound command field")
	}

	for _, cmd := range cmds {
		select {
		case c.commands <- cmd:
		default:
			c.log.Warn().Str("type", string(cmd.Type)).Msg("Command queue full, dropping command")
		}
	}
}
