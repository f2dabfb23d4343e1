package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// routeAgent resolves the AI agent responsible for a conversation. The
// assignment is sticky: once a conversation has an enabled agent it keeps it.
// A nil agent with nil error means no agent is available and the reply should
// be skipped.
func (s *EventService) routeAgent(ctx context.Context, convo *model.Conversation, message *model.Message) (*model.Agent, error) {
	log := logger.FromContext(ctx)

	if convo.AgentID != 0 {
		agent, err := s.agents.FindAgentByID(ctx, convo.AgentID)
		switch {
		case err == nil && agent.Enabled:
			return agent, nil
		case err != nil && !errors.Is(err, apperrors.ErrNotFound):
			return nil, fmt.Errorf("failed to load assigned agent %d: %w", convo.AgentID, err)
		default:
			// Assigned agent was deleted or disabled; route again.
			log.Info("Assigned agent no longer available, re-routing",
				zap.Int64("agent_id", convo.AgentID))
		}
	}

	candidates, err := s.agents.ListEnabledAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled agents: %w", err)
	}
	if len(candidates) == 0 {
		log.Debug("No enabled agents configured, skipping reply")
		return nil, nil
	}

	chosen := &candidates[0]
	if len(candidates) > 1 {
		chosen = s.classifyAgent(ctx, candidates, message)
	}

	assigned, err := s.conversations.AssignAgent(ctx, convo.ID, chosen.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to assign agent %s: %w", chosen.AgentID, err)
	}
	if assigned {
		convo.AgentID = chosen.ID
		log.Info("Routed conversation to agent",
			zap.String("conversation_id", convo.ConversationID),
			zap.String("agent_id", chosen.AgentID),
			zap.String("agent_name", chosen.Name))
		return chosen, nil
	}

	// Another reply for the same thread won the assignment race; honor the
	// winner so the conversation does not flip between agents.
	current, err := s.conversations.FindConversationByThread(ctx, convo.InboxID, convo.ExternalThreadID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload conversation after assignment race: %w", err)
	}
	convo.AgentID = current.AgentID
	winner, err := s.agents.FindAgentByID(ctx, current.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load winning agent %d: %w", current.AgentID, err)
	}
	return winner, nil
}

// classifyAgent asks the LLM to pick the best agent for the message. Any
// failure or unrecognized answer falls back to the first candidate so routing
// never blocks a reply.
func (s *EventService) classifyAgent(ctx context.Context, candidates []model.Agent, message *model.Message) *model.Agent {
	log := logger.FromContext(ctx)

	var sb strings.Builder
	sb.WriteString("You are a router that assigns incoming customer messages to the best suited agent.\n")
	sb.WriteString("Available agents:\n")
	for _, agent := range candidates {
		sb.WriteString("- ")
		sb.WriteString(agent.Name)
		if agent.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(agent.Description)
		}
		if agent.CommunicationStyle != "" {
			sb.WriteString(" (communication style: ")
			sb.WriteString(agent.CommunicationStyle)
			sb.WriteString(")")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Reply with the name of the single best agent and nothing else.")

	answer, err := s.completer.Complete(ctx, sb.String(), nil, message.Text)
	if err != nil {
		log.Warn("Agent classification failed, using first candidate",
			zap.String("fallback_agent", candidates[0].Name),
			zap.Error(err))
		return &candidates[0]
	}

	answer = strings.TrimSpace(answer)
	for i := range candidates {
		if strings.EqualFold(candidates[i].Name, answer) {
			return &candidates[i]
		}
	}
	// Tolerate verbose answers that at least contain one candidate name.
	lower := strings.ToLower(answer)
	for i := range candidates {
		if strings.Contains(lower, strings.ToLower(candidates[i].Name)) {
			return &candidates[i]
		}
	}

	log.Warn("Agent classification returned unknown name, using first candidate",
		zap.String("answer", answer),
		zap.String("fallback_agent", candidates[0].Name))
	return &candidates[0]
}
