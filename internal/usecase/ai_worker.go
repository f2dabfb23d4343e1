package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/config"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
)

// AIReplyTask holds the data an AI reply continuation needs. Ctx is detached
// from the consumer's message context so queued work survives the ack.
type AIReplyTask struct {
	Ctx          context.Context
	Inbox        model.Inbox
	Conversation model.Conversation
	Contact      model.Contact
	Message      model.Message
}

// IAIReplyWorker defines the interface for the AI reply worker pool.
type IAIReplyWorker interface {
	SubmitTask(task AIReplyTask) error
	Stop()
}

// AIReplyHandler runs one queued reply continuation.
type AIReplyHandler func(ctx context.Context, task AIReplyTask)

// AIReplyWorker bounds concurrent AI continuations so a message burst cannot
// open unbounded LLM calls.
type AIReplyWorker struct {
	pool       *ants.PoolWithFunc
	cfg        config.AIReplyWorkerPoolConfig
	handler    AIReplyHandler
	accountID  string
	baseLogger *zap.Logger
}

// Ensure AIReplyWorker implements IAIReplyWorker
var _ IAIReplyWorker = (*AIReplyWorker)(nil)

// NewAIReplyWorker creates and initializes the AI reply worker pool.
func NewAIReplyWorker(cfg config.AIReplyWorkerPoolConfig, accountID string, handler AIReplyHandler, baseLogger *zap.Logger) (*AIReplyWorker, error) {
	worker := &AIReplyWorker{
		cfg:        cfg,
		handler:    handler,
		accountID:  accountID,
		baseLogger: baseLogger.Named("ai_reply_worker"),
	}

	pool, err := ants.NewPoolWithFunc(cfg.PoolSize, func(i interface{}) {
		task, ok := i.(AIReplyTask)
		if !ok {
			worker.baseLogger.Error("Invalid task data type received", zap.Any("data", i))
			return
		}
		worker.runTask(task)
	},
		ants.WithExpiryDuration(cfg.ExpiryTime),
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(cfg.QueueSize),
		ants.WithPanicHandler(func(err interface{}) {
			worker.baseLogger.Error("Panic recovered in AI reply worker", zap.Any("panic_error", err), zap.Stack("stack"))
			observer.IncAIReplyTasksProcessed(accountID, "panic")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI reply worker pool: %w", err)
	}
	worker.pool = pool
	worker.baseLogger.Info("AI reply worker pool initialized",
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("queue_size", cfg.QueueSize),
		zap.Duration("task_budget", cfg.TaskBudget),
		zap.Duration("expiry_time", cfg.ExpiryTime),
	)
	return worker, nil
}

// SubmitTask submits a reply continuation to the worker pool.
func (w *AIReplyWorker) SubmitTask(task AIReplyTask) error {
	start := time.Now()
	observer.IncAIReplyTasksSubmitted(w.accountID)
	observer.SetAIReplyQueueLength(w.pool.Waiting())

	err := w.pool.Invoke(task)
	duration := time.Since(start)

	if err != nil {
		w.baseLogger.Warn("Failed to submit AI reply task to pool",
			zap.String("external_message_id", task.Message.ExternalMessageID),
			zap.Duration("submit_duration", duration),
			zap.Error(err),
		)
		observer.IncAIReplyTasksProcessed(w.accountID, "submit_error")
		if errors.Is(err, ants.ErrPoolOverload) {
			return fmt.Errorf("AI reply pool overload: %w", err)
		}
		return fmt.Errorf("failed to invoke AI reply task: %w", err)
	}

	w.baseLogger.Debug("Submitted AI reply task",
		zap.String("external_message_id", task.Message.ExternalMessageID),
		zap.Duration("submit_duration", duration),
	)
	return nil
}

// runTask executes the handler under the configured wall-clock budget.
func (w *AIReplyWorker) runTask(task AIReplyTask) {
	ctx := task.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if w.cfg.TaskBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.cfg.TaskBudget)
		defer cancel()
	}
	w.handler(ctx, task)
}

// Stop releases the worker pool. Queued tasks are dropped; a reply lost on
// shutdown is not regenerated.
func (w *AIReplyWorker) Stop() {
	w.baseLogger.Info("Stopping AI reply worker pool")
	w.pool.Release()
}
