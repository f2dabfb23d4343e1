package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/config"
	"github.com/daniel-neiva/nexcrm-sub000/internal/jetstream"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// AckNakAction represents the decision made after processing a message
type AckNakAction int

const (
	ActionAck      AckNakAction = iota // Processed successfully, ACK it
	ActionAckDead                      // Non-retryable error or retries exhausted, ACK and leave the error on the raw event row
	ActionNakDelay                     // Retryable error, NAK with calculated delay
)

// determineAckNakAction decides the fate of a message based on the processing
// result and delivery metadata.
func determineAckNakAction(
	processingErr error,
	metadata *nats.MsgMetadata,
	maxDeliver int,
	nakBaseDelay time.Duration,
	nakMaxDelay time.Duration,
) (action AckNakAction, delay time.Duration) {

	if processingErr == nil {
		return ActionAck, 0
	}

	isRetryable := apperrors.IsRetryable(processingErr)
	numDelivered := metadata.NumDelivered

	// Retries exhausted or fatal error: the raw event row carries the error
	// string, so the message itself can be dropped.
	if numDelivered >= uint64(maxDeliver) || !isRetryable {
		return ActionAckDead, 0
	}

	attempt := numDelivered // starts at 1
	delay = nakBaseDelay
	if attempt > 1 {
		delay = nakBaseDelay * (1 << (attempt - 1)) // base * 2^(attempt-1)
	}
	if delay > nakMaxDelay {
		delay = nakMaxDelay
	}
	return ActionNakDelay, delay
}

// TriggerConsumer consumes event triggers from the durable JetStream consumer
// and hands the referenced raw events to the processor.
type TriggerConsumer struct {
	client        jetstream.ClientInterface
	processor     Processor
	cfg           config.ConsumerNatsConfig
	accountID     string
	ctx           context.Context
	cancel        context.CancelFunc
	sub           *nats.Subscription
	filterSubject string
}

// NewTriggerConsumer creates the event trigger consumer. The durable and queue
// group names in cfg are expected to already carry the account suffix.
func NewTriggerConsumer(client jetstream.ClientInterface, processor Processor, cfg config.ConsumerNatsConfig, accountID string) *TriggerConsumer {
	ctx, cancel := context.WithCancel(context.Background())
	loggerWithTenant := logger.Log.With(zap.String("account_id", accountID))
	ctx = logger.WithLogger(ctx, loggerWithTenant)
	ctx = tenant.WithAccountID(ctx, accountID)

	return &TriggerConsumer{
		client:    client,
		processor: processor,
		cfg:       cfg,
		accountID: accountID,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Setup configures the NATS stream and durable consumer for event triggers
func (c *TriggerConsumer) Setup() error {
	log := logger.FromContext(c.ctx)
	log.Info("Setting up TriggerConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	maxAgeRetention := time.Duration(c.cfg.MaxAge*24) * time.Hour
	streamSubject := fmt.Sprintf("%s.*", c.cfg.Subject)
	consumerSubject := fmt.Sprintf("%s.%s", c.cfg.Subject, c.accountID)

	streamCfg := &nats.StreamConfig{
		Name:      c.cfg.Stream,
		Subjects:  []string{streamSubject},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAgeRetention,
	}

	if err := c.client.SetupStream(c.ctx, streamCfg); err != nil {
		log.Error("Failed to setup trigger stream", zap.Error(err), zap.String("stream", c.cfg.Stream))
		return fmt.Errorf("failed to setup trigger stream '%s': %w", c.cfg.Stream, err)
	}

	consumerCfg := &nats.ConsumerConfig{
		Durable:        c.cfg.Consumer,
		DeliverGroup:   c.cfg.QueueGroup,
		FilterSubjects: []string{consumerSubject},
		AckPolicy:      nats.AckExplicitPolicy,
		DeliverSubject: nats.NewInbox(),
		MaxDeliver:     c.cfg.MaxDeliver,
		AckWait:        30 * time.Second,
		MaxAckPending:  1000,
		ReplayPolicy:   nats.ReplayInstantPolicy,
		DeliverPolicy:  nats.DeliverAllPolicy,
	}
	c.filterSubject = consumerSubject

	if err := c.client.SetupConsumer(c.ctx, c.cfg.Stream, consumerCfg); err != nil {
		log.Error("Failed to setup trigger consumer", zap.Error(err), zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
		return fmt.Errorf("failed to setup trigger consumer '%s' for stream '%s': %w", c.cfg.Consumer, c.cfg.Stream, err)
	}

	log.Info("TriggerConsumer setup complete")
	return nil
}

// Start subscribes to the NATS stream
func (c *TriggerConsumer) Start() error {
	log := logger.FromContext(c.ctx)
	log.Info("Starting TriggerConsumer subscription...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))

	sub, err := c.client.SubscribePush(c.filterSubject, c.cfg.Consumer, c.cfg.QueueGroup, c.cfg.Stream, c.handleMessage)
	if err != nil {
		log.Error("Failed to subscribe trigger consumer", zap.Error(err),
			zap.String("stream", c.cfg.Stream),
			zap.String("consumer", c.cfg.Consumer),
			zap.String("group", c.cfg.QueueGroup),
		)
		return fmt.Errorf("failed to subscribe trigger consumer '%s': %w", c.cfg.Consumer, err)
	}
	c.sub = sub
	log.Info("TriggerConsumer subscribed successfully")
	return nil
}

// Stop drains the subscription and cancels the consumer context
func (c *TriggerConsumer) Stop() {
	log := logger.FromContext(c.ctx)
	log.Info("Stopping TriggerConsumer...", zap.String("stream", c.cfg.Stream), zap.String("consumer", c.cfg.Consumer))
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			log.Error("Error draining trigger subscription", zap.Error(err))
		}
		log.Info("Trigger subscription drained")
	}
	if c.cancel != nil {
		c.cancel()
	}
	log.Info("TriggerConsumer stopped")
}

// handleMessage is the core message processing logic
func (c *TriggerConsumer) handleMessage(msg *nats.Msg) {
	startTime := utils.Now()
	eventType := "unknown"

	defer func() {
		observer.ObserveEventProcessingDuration(eventType, c.accountID, time.Since(startTime))

		if r := recover(); r != nil {
			logFromCtx := logger.FromContext(c.ctx)
			logFromCtx.Error("[panic] Recovered from panic in trigger handler",
				zap.Any("panic", r),
				zap.String("subject", msg.Subject),
				zap.Duration("duration", time.Since(startTime)),
				zap.Stack("stack"),
			)
			observer.IncEventsFailed(eventType, c.accountID)
			observer.IncEventProcessingAction(eventType, c.accountID, "panic_nak", "panic")
			if nakErr := msg.Nak(); nakErr != nil {
				logFromCtx.Error("Failed to NAK message after panic", zap.Error(nakErr))
			}
		}
	}()

	msgCtx := c.ctx
	logFromCtx := logger.FromContext(msgCtx)

	metadata, err := msg.Metadata()
	if err != nil {
		logFromCtx.Error("Failed to read message metadata", zap.Error(err), zap.Duration("duration", time.Since(startTime)))
		if nakErr := msg.Nak(); nakErr != nil {
			logFromCtx.Error("Failed to NAK message", zap.Error(nakErr))
		}
		observer.IncEventProcessingAction(eventType, c.accountID, "nak_metadata_error", "metadata")
		return
	}

	var trigger EventTrigger
	if err := json.Unmarshal(msg.Data, &trigger); err != nil || trigger.EventID == "" {
		// Redelivery cannot repair a malformed trigger
		logFromCtx.Error("Dropping malformed event trigger",
			zap.Error(err),
			zap.String("subject", msg.Subject),
			zap.ByteString("data", msg.Data),
		)
		observer.IncEventsFailed(eventType, c.accountID)
		observer.IncEventProcessingAction(eventType, c.accountID, "ack_malformed_trigger", "unmarshal")
		if ackErr := msg.Ack(); ackErr != nil {
			logFromCtx.Error("Failed to ACK malformed trigger", zap.Error(ackErr))
		}
		return
	}
	if trigger.EventType != "" {
		eventType = trigger.EventType
	}

	requestID := uuid.NewString()
	msgCtx = tenant.WithRequestID(msgCtx, requestID)
	msgCtx = logger.WithLogger(msgCtx, logFromCtx.With(
		zap.String("request_id", requestID),
		zap.String("event_id", trigger.EventID),
		zap.String("event_type", trigger.EventType),
		zap.String("instance", trigger.Instance),
		zap.Uint64("stream_sequence", metadata.Sequence.Stream),
		zap.Uint64("num_delivered", metadata.NumDelivered),
		zap.String("subject", msg.Subject),
	))
	enhancedLog := logger.FromContext(msgCtx)

	processingErr := c.processor.ProcessEvent(msgCtx, trigger.EventID)

	action, nakDelay := determineAckNakAction(processingErr, metadata, c.cfg.MaxDeliver, c.cfg.NakBaseDelay, c.cfg.NakMaxDelay)

	errorType := "none"
	if processingErr != nil {
		errorType = observer.SanitizeErrorType(processingErr.Error())
	}

	switch action {
	case ActionAck:
		enhancedLog.Info("Successfully processed event trigger", zap.Duration("duration", time.Since(startTime)))
		observer.IncEventsProcessed(eventType, c.accountID)
		observer.IncEventProcessingAction(eventType, c.accountID, "ack_success", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK message after successful processing", zap.Error(ackErr))
		}

	case ActionNakDelay:
		enhancedLog.Info("NAKing event trigger with delay for redelivery (retryable error)",
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("nak_delay", nakDelay),
			zap.Duration("duration", time.Since(startTime)),
		)
		observer.IncEventsFailed(eventType, c.accountID)
		observer.IncEventProcessingAction(eventType, c.accountID, "nak_retry", errorType)
		if nakErr := msg.NakWithDelay(nakDelay); nakErr != nil {
			enhancedLog.Error("Failed to NAK message with delay", zap.Error(nakErr))
		}

	case ActionAckDead:
		logReason := "max delivery attempts reached"
		if !apperrors.IsRetryable(processingErr) {
			logReason = "non-retryable error"
		}
		// The processor has already recorded the error on the raw event row,
		// which serves as the durable failure record.
		enhancedLog.Warn(fmt.Sprintf("Dropping event trigger: %s", logReason),
			zap.Error(processingErr),
			zap.Uint64("num_delivered", metadata.NumDelivered),
			zap.Int("max_deliver", c.cfg.MaxDeliver),
			zap.Duration("duration", time.Since(startTime)),
		)
		observer.IncEventsFailed(eventType, c.accountID)
		observer.IncEventProcessingAction(eventType, c.accountID, "ack_dead", errorType)
		if ackErr := msg.Ack(); ackErr != nil {
			enhancedLog.Error("Failed to ACK dead event trigger", zap.Error(ackErr))
		}
	}
}
