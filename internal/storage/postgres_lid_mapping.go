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
	"github.com/daniel-neiva/nexcrm-sub000/pkg/logger"
	"github.com/daniel-neiva/nexcrm-sub000/pkg/utils"
)

// ListLIDMappings returns every stored LID mapping of the account. Called
// once at cache warm-up, so the account ID is an explicit argument rather
// than pulled from a request context.
func (r *PostgresRepo) ListLIDMappings(ctx context.Context, accountID string) ([]model.LIDMapping, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account ID is required", apperrors.ErrBadRequest)
	}

	var mappings []model.LIDMapping
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("account_id = ?", accountID).
			Find(&mappings)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "ListLIDMappings Read", operation)
	observer.ObserveDbOperationDuration("read", "lid_mapping", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return mappings, nil
}

// SaveLIDMapping stores a LID mapping, upserting on the LID so a repeated
// observation refreshes the phone number.
func (r *PostgresRepo) SaveLIDMapping(ctx context.Context, mapping *model.LIDMapping) error {
	if mapping.AccountID == "" {
		return fmt.Errorf("%w: account ID is required", apperrors.ErrBadRequest)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "lid"}},
			DoUpdates: clause.AssignmentColumns([]string{"phone_number"}),
		}).Create(mapping)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "SaveLIDMapping Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "lid_mapping", mapping.AccountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to save LID mapping after retries",
			zap.String("lid", mapping.LID), zap.Error(commitErr))
	}
	return commitErr
}
