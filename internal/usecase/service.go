package usecase

import (
	"sync"
	"time"

	"github.com/daniel-neiva/nexcrm-sub000/internal/cache"
	"github.com/daniel-neiva/nexcrm-sub000/internal/gateway"
	"github.com/daniel-neiva/nexcrm-sub000/internal/llm"
	"github.com/daniel-neiva/nexcrm-sub000/internal/realtime"
	"github.com/daniel-neiva/nexcrm-sub000/internal/storage"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// EventService turns stored raw events into CRM state changes and reactions:
// contact and conversation upserts, unread accounting, AI replies, label
// switches and realtime notifications.
type EventService struct {
	events        storage.EventRepo
	inboxes       storage.InboxRepo
	contacts      storage.ContactRepo
	conversations storage.ConversationRepo
	messages      storage.MessageRepo
	agents        storage.AgentRepo
	labels        storage.LabelRepo
	lids          *cache.LIDCache
	gateway       gateway.Gateway
	completer     llm.Completer
	notifier      realtime.Notifier
	aiWorker      IAIReplyWorker

	accountID    string
	historyLimit int
	readOverride *readOverrideTracker
}

// NewEventService creates the event service. The AI worker is attached
// separately because the worker's task handler is a method of the service.
func NewEventService(
	events storage.EventRepo,
	inboxes storage.InboxRepo,
	contacts storage.ContactRepo,
	conversations storage.ConversationRepo,
	messages storage.MessageRepo,
	agents storage.AgentRepo,
	labels storage.LabelRepo,
	lids *cache.LIDCache,
	gw gateway.Gateway,
	completer llm.Completer,
	notifier realtime.Notifier,
	accountID string,
	historyLimit int,
	readOverrideWindow time.Duration,
) *EventService {
	return &EventService{
		events:        events,
		inboxes:       inboxes,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		agents:        agents,
		labels:        labels,
		lids:          lids,
		gateway:       gw,
		completer:     completer,
		notifier:      notifier,
		accountID:     accountID,
		historyLimit:  historyLimit,
		readOverride:  newReadOverrideTracker(readOverrideWindow),
	}
}

// SetAIWorker attaches the AI reply worker pool.
func (s *EventService) SetAIWorker(worker IAIReplyWorker) {
	s.aiWorker = worker
}

// readOverrideTracker remembers when each conversation was last marked read
// so that chat metadata events captured before the read action cannot
// resurrect a stale unread count.
type readOverrideTracker struct {
	window time.Duration
	mu     sync.Mutex
	readAt map[int64]time.Time
}

func newReadOverrideTracker(window time.Duration) *readOverrideTracker {
	return &readOverrideTracker{
		window: window,
		readAt: make(map[int64]time.Time),
	}
}

// markRead records a read action for the conversation.
func (t *readOverrideTracker) markRead(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readAt[conversationID] = utils.Now()
}

// active reports whether a read action happened within the override window.
// Expired entries are dropped on access.
func (t *readOverrideTracker) active(conversationID int64) bool {
	if t.window <= 0 {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.readAt[conversationID]
	if !ok {
		return false
	}
	if utils.Now().Sub(at) > t.window {
		delete(t.readAt, conversationID)
		return false
	}
	return true
}
