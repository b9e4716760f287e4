// Package transport publishes dissemination reports to the pub/sub broker.
package transport

import (
	"context"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/tifda/api/schemas"
	"github.com/xkilldash9x/tifda/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultTopicTemplate is used when the recipient carries no topic override.
const defaultTopicTemplate = "tifda/output/dissemination_reports/%s"

// Publisher delivers outbound messages. Satisfied by MQTTPublisher in
// production and by test doubles elsewhere.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
	Close()
}

// pahoClient is the slice of mqtt.Client the publisher uses; narrowed for
// testability.
type pahoClient interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// MQTTPublisher publishes dissemination envelopes over MQTT.
type MQTTPublisher struct {
	client pahoClient
	logger *zap.Logger
}

// NewMQTTPublisher connects to the broker and returns a ready publisher.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required")
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		if cfg.PasswordEnv != "" {
			opts.SetPassword(os.Getenv(cfg.PasswordEnv))
		}
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 10 * time.Second
	}
	opts.SetConnectTimeout(connectTimeout)

	p := &MQTTPublisher{
		client: mqtt.NewClient(opts),
		logger: logger.Named("transport.mqtt"),
	}

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("timed out connecting to MQTT broker %s", cfg.BrokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.BrokerURL, err)
	}
	return p, nil
}

// Publish sends one payload. The context bounds how long we wait for the
// broker to acknowledge.
func (p *MQTTPublisher) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	token := p.client.Publish(topic, qos, retain, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for a sensor input topic at the given QoS.
func (p *MQTTPublisher) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := p.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	p.logger.Info("Subscribed to sensor topic", zap.String("topic", topic), zap.Uint8("qos", qos))
	return nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (p *MQTTPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// Reporter wraps a Publisher and turns routed messages into per-recipient
// dissemination envelopes.
type Reporter struct {
	publisher  Publisher
	recipients map[string]schemas.RecipientInfo
	defaultQoS byte
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

// NewReporter builds a Reporter over publisher for the given roster.
func NewReporter(publisher Publisher, recipients []schemas.RecipientInfo, defaultQoS byte, logger *zap.Logger) *Reporter {
	byID := make(map[string]schemas.RecipientInfo, len(recipients))
	for _, r := range recipients {
		byID[r.RecipientID] = r
	}
	return &Reporter{
		publisher:  publisher,
		recipients: byID,
		defaultQoS: defaultQoS,
		logger:     logger.Named("transport.reporter"),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Report publishes one outbound message to its recipient's topic. Delivery
// failures are returned, not fatal; the caller decides whether to continue
// with the rest of the batch.
func (r *Reporter) Report(ctx context.Context, msg schemas.OutgoingMessage) error {
	recipient, ok := r.recipients[msg.RecipientID]
	if !ok {
		return fmt.Errorf("unknown recipient %q", msg.RecipientID)
	}

	// The routing decision's message id rides through unchanged so published
	// payloads correlate with their audit rows. A fresh id is minted only
	// when a caller hands over a message without one.
	messageID := msg.MessageID
	if messageID == "" {
		messageID = r.newID()
	}

	envelope := schemas.DisseminationEnvelope{
		MessageID:   messageID,
		RecipientID: msg.RecipientID,
		FormatType:  msg.FormatType,
		Timestamp:   r.now().UTC(),
		Source:      "tifda_engine",
		Content:     msg.Content,
		DecisionID:  msg.DecisionID,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal envelope for %s: %w", msg.RecipientID, err)
	}

	if err := r.publisher.Publish(ctx, TopicFor(recipient), payload, QoSFor(recipient, r.defaultQoS), false); err != nil {
		return err
	}
	r.logger.Debug("Dissemination report published",
		zap.String("recipient_id", msg.RecipientID),
		zap.String("message_id", envelope.MessageID),
	)
	return nil
}

// TopicFor resolves the publish topic for a recipient: the configured
// override, else the default per-recipient template.
func TopicFor(r schemas.RecipientInfo) string {
	if r.TopicOverride != "" {
		return r.TopicOverride
	}
	return fmt.Sprintf(defaultTopicTemplate, r.RecipientID)
}

// QoSFor resolves the QoS for a recipient: per-recipient override, else the
// transport default.
func QoSFor(r schemas.RecipientInfo, defaultQoS byte) byte {
	if r.QoS != nil {
		return *r.QoS
	}
	return defaultQoS
}
