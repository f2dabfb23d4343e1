package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/daniel-neiva/nexcrm-sub000/internal/llm"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// suggestedLabelRe extracts the stage suggestion the reply prompt asks the
// model to emit. The tag is stripped before the text is sent to the contact.
var suggestedLabelRe = regexp.MustCompile(`(?is)<suggested_label>\s*(.*?)\s*</suggested_label>`)

// ProcessAIReply generates and delivers one AI reply. It runs on the worker
// pool after the triggering event was acked, so failures are logged and
// counted but never retried.
func (s *EventService) ProcessAIReply(ctx context.Context, task AIReplyTask) {
	start := utils.Now()
	status := "success"
	defer func() {
		observer.ObserveAIReplyProcessingDuration(s.accountID, time.Since(start))
		observer.IncAIReplyTasksProcessed(s.accountID, status)
	}()

	log := logger.FromContext(ctx).With(
		zap.String("conversation_id", task.Conversation.ConversationID),
		zap.String("source_message_id", task.Message.ExternalMessageID),
	)
	ctx = logger.WithLogger(ctx, log)

	// A crashed consumer may replay the trigger after the reply was already
	// persisted; the source guard keeps the contact from getting it twice.
	exists, err := s.messages.HasReplyForSource(ctx, task.Message.ExternalMessageID)
	if err != nil {
		log.Error("Failed to check for existing reply", zap.Error(err))
		status = "error"
		return
	}
	if exists {
		log.Info("Reply already exists for source message, skipping")
		status = "duplicate"
		return
	}

	agent, err := s.routeAgent(ctx, &task.Conversation, &task.Message)
	if err != nil {
		log.Error("Agent routing failed", zap.Error(err))
		status = "error"
		return
	}
	if agent == nil {
		status = "no_agent"
		return
	}
	log = log.With(zap.String("agent_id", agent.AgentID))
	ctx = logger.WithLogger(ctx, log)

	labels, err := s.labels.ListLabels(ctx)
	if err != nil {
		log.Warn("Failed to load label vocabulary, replying without stage suggestions", zap.Error(err))
		labels = nil
	}
	system := s.buildSystemPrompt(agent, &task.Contact, labels)

	history, err := s.loadHistory(ctx, &task.Conversation, &task.Message)
	if err != nil {
		log.Error("Failed to load conversation history", zap.Error(err))
		status = "error"
		return
	}

	answer, err := s.completer.Complete(ctx, system, history, task.Message.Text)
	if err != nil {
		log.Error("Completion failed", zap.Error(err))
		status = "error"
		return
	}

	replyText, suggestedLabel := extractSuggestedLabel(answer)
	if replyText == "" {
		log.Warn("Completion produced empty reply text, skipping send")
		status = "empty"
		return
	}

	result, err := s.gateway.SendText(ctx, task.Inbox.Instance, task.Conversation.ExternalThreadID, replyText)
	if err != nil {
		log.Error("Failed to send reply", zap.Error(err))
		status = "send_error"
		return
	}

	externalID := result.MessageID
	if externalID == "" {
		externalID = uuid.NewString()
	}
	ts := utils.UnixToTime(result.Timestamp)
	if result.Timestamp == 0 {
		ts = utils.Now()
	}
	reply := model.Message{
		MessageID:         uuid.NewString(),
		ExternalMessageID: externalID,
		ConversationID:    task.Conversation.ID,
		AccountID:         s.accountID,
		Sender:            model.MessageSenderAIAgent,
		FromMe:            true,
		MessageType:       model.MessageTypeText,
		Text:              replyText,
		IsRead:            true,
		SourceMessageID:   task.Message.ExternalMessageID,
		Timestamp:         ts,
	}
	inserted, err := s.messages.InsertMessage(ctx, &reply)
	if err != nil {
		// The reply went out but the row is lost; the source guard cannot
		// see it anymore, so log loudly.
		log.Error("Reply sent but failed to persist", zap.Error(err))
		status = "persist_error"
		return
	}
	if !inserted {
		log.Info("Reply already persisted by a concurrent worker")
		status = "duplicate"
		return
	}

	summary := lastMessageSummary{
		Type:   reply.MessageType,
		Text:   utils.TruncateString(reply.Text, 120),
		Sender: reply.Sender,
	}
	if touchErr := s.conversations.TouchLastMessage(ctx, task.Conversation.ID, ts, datatypes.JSON(utils.MustMarshalJSON(summary))); touchErr != nil {
		log.Warn("Failed to update conversation last message", zap.Error(touchErr))
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeNewMessage, model.NewMessagePayload{
		ConversationID: task.Conversation.ConversationID,
		Message:        &reply,
		UnreadCount:    task.Conversation.UnreadCount,
	})

	if suggestedLabel != "" {
		if labelErr := s.applyLabelByName(ctx, &task.Conversation, suggestedLabel); labelErr != nil {
			log.Warn("Failed to apply suggested label",
				zap.String("label", suggestedLabel),
				zap.Error(labelErr))
		}
	}

	log.Info("AI reply delivered",
		zap.String("reply_message_id", reply.MessageID),
		zap.Int("reply_length", len(replyText)),
		zap.String("suggested_label", suggestedLabel))
}

// buildSystemPrompt assembles the reply instruction block: who the agent is,
// how it speaks, its master instructions and handoff rules, the label
// vocabulary, its knowledge material and the attributes it still needs to
// collect from the contact.
func (s *EventService) buildSystemPrompt(agent *model.Agent, contact *model.Contact, labels []model.Label) string {
	var sb strings.Builder
	sb.WriteString("You are ")
	sb.WriteString(agent.Name)
	if desc := strings.TrimSpace(agent.Description); desc != "" {
		sb.WriteString(", ")
		sb.WriteString(desc)
	}
	sb.WriteString(", replying over WhatsApp.")

	if style := strings.TrimSpace(agent.CommunicationStyle); style != "" {
		sb.WriteString("\n\nCommunication style: ")
		sb.WriteString(style)
	}
	if company := strings.TrimSpace(agent.AttributeString("company_context")); company != "" {
		sb.WriteString("\n\nCompany context: ")
		sb.WriteString(company)
	}

	if prompt := strings.TrimSpace(agent.SystemPrompt); prompt != "" {
		sb.WriteString("\n\n")
		sb.WriteString(prompt)
	}

	sb.WriteString("\n\nYou are talking to ")
	sb.WriteString(contact.DisplayName())
	sb.WriteString(".")

	if handoff := strings.TrimSpace(agent.HandoffRules); handoff != "" {
		sb.WriteString("\n\nHand the conversation to a human operator when: ")
		sb.WriteString(handoff)
	}

	if len(labels) > 0 {
		sb.WriteString("\n\nAfter your reply, classify the conversation into one of these labels:\n")
		for _, label := range labels {
			sb.WriteString("- ")
			sb.WriteString(label.Name)
			if label.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(label.Description)
			}
			sb.WriteString("\n")
		}
		sb.WriteString("Append the chosen label as <suggested_label>NAME</suggested_label> at the very end of your answer, ")
		sb.WriteString("only if the conversation stage changed. Omit the tag otherwise.")
	}

	if knowledge := agent.KnowledgeText(); knowledge != "" {
		sb.WriteString("\n\nReference material:\n")
		sb.WriteString(knowledge)
	}

	if attrs := agent.AttributeStrings("attributes_to_collect"); len(attrs) > 0 {
		sb.WriteString("\n\nDuring the conversation, naturally collect the following from the contact:\n")
		for _, attr := range attrs {
			sb.WriteString("- ")
			sb.WriteString(attr)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// loadHistory maps recent stored messages to chat turns, oldest first,
// excluding the triggering message which is passed as the user turn.
func (s *EventService) loadHistory(ctx context.Context, convo *model.Conversation, trigger *model.Message) ([]llm.Message, error) {
	stored, err := s.messages.ListRecentMessages(ctx, convo.ID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	history := make([]llm.Message, 0, len(stored))
	for i := range stored {
		msg := &stored[i]
		if msg.ExternalMessageID == trigger.ExternalMessageID {
			continue
		}
		if msg.Text == "" {
			continue
		}
		role := llm.RoleUser
		if msg.FromMe || msg.Sender == model.MessageSenderAIAgent {
			role = llm.RoleAssistant
		}
		history = append(history, llm.Message{Role: role, Content: msg.Text})
	}
	return history, nil
}

// extractSuggestedLabel splits a completion into reply text and the optional
// stage suggestion.
func extractSuggestedLabel(answer string) (string, string) {
	match := suggestedLabelRe.FindStringSubmatch(answer)
	if match == nil {
		return strings.TrimSpace(answer), ""
	}
	text := suggestedLabelRe.ReplaceAllString(answer, "")
	return strings.TrimSpace(text), strings.TrimSpace(match[1])
}
