package consumer

import (
	"context"
	"fmt"

	mqttcommon "listing-discovery/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT subscription surface
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// MQTTListener feeds listing events published on an MQTT topic to the dispatcher
type MQTTListener struct {
	subscriber Subscriber
	dispatcher *Dispatcher
	topic      string
	qos        byte
	logger     *zap.Logger
}

func NewMQTTListener(subscriber Subscriber, dispatcher *Dispatcher, topic string, qos byte, logger *zap.Logger) *MQTTListener {
	return &MQTTListener{
		subscriber: subscriber,
		dispatcher: dispatcher,
		topic:      topic,
		qos:        qos,
		logger:     logger,
	}
}

// Start subscribes and blocks until ctx is done
func (l *MQTTListener) Start(ctx context.Context) error {
	err := l.subscriber.Subscribe(l.topic, l.qos, func(topic string, payload []byte) error {
		return l.dispatcher.DispatchJSON(ctx, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe listing events: %w", err)
	}

	l.logger.Info("Listing event listener subscribed",
		zap.String("topic", l.topic),
	)

	<-ctx.Done()
	if err := l.subscriber.Unsubscribe(l.topic); err != nil {
		l.logger.Warn("Failed to unsubscribe",
			zap.String("topic", l.topic),
			zap.Error(err),
		)
	}
	return nil
}
