package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
)

// applyLabelByName attaches a label to a conversation and its contact by
// name. Unknown names are ignored: the model may suggest labels the account
// does not define.
// Publishes labels_updated only when the attachment set actually changed.
func (s *EventService) applyLabelByName(ctx context.Context, convo *model.Conversation, name string) error {
	log := logger.FromContext(ctx)

	label, err := s.labels.FindLabelByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			log.Debug("Suggested label not defined for account, ignoring",
				zap.String("label", name))
			return nil
		}
		return fmt.Errorf("failed to look up label %q: %w", name, err)
	}

	changed, err := s.labels.ApplyLabel(ctx, convo.ID, convo.ContactID, label)
	if err != nil {
		return fmt.Errorf("failed to apply label %q: %w", label.Name, err)
	}
	if !changed {
		return nil
	}

	names, err := s.labels.ListConversationLabelNames(ctx, convo.ID)
	if err != nil {
		log.Warn("Label applied but listing attachments failed",
			zap.String("label", label.Name),
			zap.Error(err))
		names = []string{label.Name}
	}

	_ = s.notifier.Publish(ctx, s.accountID, model.RealtimeLabelsUpdated, model.LabelsUpdatedPayload{
		ConversationID: convo.ConversationID,
		Labels:         names,
	})

	log.Info("Conversation labels updated",
		zap.String("conversation_id", convo.ConversationID),
		zap.String("label", label.Name),
		zap.String("category", label.Category),
		zap.Strings("labels", names))
	return nil
}
