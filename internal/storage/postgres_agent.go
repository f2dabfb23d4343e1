package storage

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
	"github.com/daniel-neiva/nexcrm-sub000/internal/observer"
	"github.com/daniel-neiva/nexcrm-sub000/internal/tenant"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// SaveAgent stores an AI agent, upserting on the external agent ID.
func (r *PostgresRepo) SaveAgent(ctx context.Context, agent *model.Agent) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if agent.AccountID != "" && agent.AccountID != accountID {
		return fmt.Errorf("%w: agent AccountID %s does not match account %s", apperrors.ErrBadRequest, agent.AccountID, accountID)
	}
	agent.AccountID = accountID
	agent.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "system_prompt", "enabled",
				"knowledge_data", "attributes", "updated_at",
			}),
		}).Create(agent)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveAgent Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "agent", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save agent after retries",
			zap.String("agent_id", agent.AgentID), zap.Error(commitErr))
	}
	return commitErr
}

// FindAgentByID fetches an agent by its primary key.
func (r *PostgresRepo) FindAgentByID(ctx context.Context, id int64) (*model.Agent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var agent model.Agent
	operation := func() error {
		result := r.db.WithContext(ctx).Where("id = ?", id).First(&agent)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindAgentByID Read", operation)
	observer.ObserveDbOperationDuration("read", "agent", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &agent, nil
}

// ListEnabledAgents returns every enabled agent of the account, ordered by
// creation so routing fallbacks are deterministic.
func (r *PostgresRepo) ListEnabledAgents(ctx context.Context) ([]model.Agent, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var agents []model.Agent
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ? AND enabled = ?", accountID, true).
			Order("id ASC").
			Find(&agents)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListEnabledAgents Read", operation)
	observer.ObserveDbOperationDuration("read", "agent", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return agents, nil
}
