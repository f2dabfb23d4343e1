package jetstream

import (
	"context"

	"github.com/nats-io/nats.go"
)

// ClientInterface is the JetStream surface the trigger publisher and the
// event consumer depend on, kept narrow so tests can swap in a mock.
type ClientInterface interface {
	// SetupStream ensures the trigger stream exists with the given
	// configuration, updating it in place when it already does.
	SetupStream(ctx context.Context, streamConfig *nats.StreamConfig) error

	// SetupConsumer ensures a durable consumer exists on the stream.
	SetupConsumer(ctx context.Context, streamName string, consumerConfig *nats.ConsumerConfig) error

	// SubscribePush binds handler to a push consumer in a queue group.
	SubscribePush(subject, consumer, group, stream string, handler nats.MsgHandler) (*nats.Subscription, error)

	// Publish sends data to subject; headers carry the dedup message ID.
	Publish(subject string, data []byte, headers map[string]string) error

	// Close drains and closes the NATS connection.
	Close()

	// NatsConn exposes the underlying connection for core-NATS publishes.
	NatsConn() *nats.Conn
}
