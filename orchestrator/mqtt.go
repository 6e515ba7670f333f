package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const disconnTimeout = 250

var errPublishTimeout = errors.New("failed to publish due to timeout reached")

// MQTTObserver publishes round events to an MQTT broker so external
// dashboards can follow a run. Publishing is best-effort: a broker hiccup is
// logged and the round goes on.
type MQTTObserver struct {
	client    mqtt.Client
	qos       byte
	timeout   time.Duration
	baseTopic string
	logger    *slog.Logger
}

func NewMQTTObserver(url, clientID, baseTopic string, qos byte, timeout time.Duration, logger *slog.Logger) (*MQTTObserver, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(url).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if ok := token.WaitTimeout(timeout); !ok {
		return nil, errPublishTimeout
	}
	if token.Error() != nil {
		return nil, token.Error()
	}

	return &MQTTObserver{
		client:    c,
		qos:       qos,
		timeout:   timeout,
		baseTopic: baseTopic,
		logger:    logger,
	}, nil
}

func (o *MQTTObserver) Transition(ctx context.Context, e Event) {
	o.publish(ctx, o.baseTopic+"/rounds/transition", e)
}

func (o *MQTTObserver) RoundFinalized(ctx context.Context, r RoundRecord) {
	o.publish(ctx, o.baseTopic+"/rounds/record", r)
}

func (o *MQTTObserver) publish(ctx context.Context, topic string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to marshal round event", slog.Any("error", err))

		return
	}

	token := o.client.Publish(topic, o.qos, false, data)
	if ok := token.WaitTimeout(o.timeout); !ok {
		o.logger.WarnContext(ctx, "Failed to publish round event", slog.Any("error", errPublishTimeout))

		return
	}
	if token.Error() != nil {
		o.logger.WarnContext(ctx, "Failed to publish round event", slog.Any("error", token.Error()))
	}
}

func (o *MQTTObserver) Disconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		o.client.Disconnect(disconnTimeout)

		return nil
	}
}
