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

// UpsertContact creates or refreshes a contact keyed by (account, phone) and
// returns the stored row including its primary key.
func (r *PostgresRepo) UpsertContact(ctx context.Context, contact *model.Contact) (*model.Contact, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}
	if contact.AccountID != "" && contact.AccountID != accountID {
		return nil, fmt.Errorf("%w: contact AccountID %s does not match account %s", apperrors.ErrBadRequest, contact.AccountID, accountID)
	}
	contact.AccountID = accountID
	contact.UpdatedAt = utils.Now()

	operation := func() error {
		result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "phone_number"}},
			DoUpdates: clause.AssignmentColumns(model.ContactUpdateColumns()),
		}).Create(contact)

		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpsertContact Commit", operation)
	observer.ObserveDbOperationDuration("upsert", "contact", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to upsert contact after retries",
			zap.String("phone_number", contact.PhoneNumber), zap.Error(commitErr))
		return nil, commitErr
	}

	// On conflict the insert does not report the surviving row's key, so
	// fetch the canonical record after the write.
	return r.FindContactByPhone(ctx, contact.PhoneNumber)
}

// FindContactByPhone fetches a contact by phone number within the account.
func (r *PostgresRepo) FindContactByPhone(ctx context.Context, phoneNumber string) (*model.Contact, error) {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	var contact model.Contact
	operation := func() error {
		result := r.db.WithContext(ctx).
			Where("phone_number = ? AND account_id = ?", phoneNumber, accountID).
			First(&contact)
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	readPolicy := newRetryPolicy(ctx, readRetryMaxElapsedTime)
	startTime := utils.Now()
	readErr := retryableOperation(ctx, readPolicy, "FindContactByPhone Read", operation)
	observer.ObserveDbOperationDuration("read", "contact", accountID, time.Since(startTime), readErr)

	if readErr != nil {
		return nil, readErr
	}
	return &contact, nil
}

// UpdateContactAvatar stores a freshly fetched profile picture URL.
func (r *PostgresRepo) UpdateContactAvatar(ctx context.Context, contactID int64, avatarURL string) error {
	accountID, err := tenant.FromContext(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get account ID: %w", apperrors.ErrUnauthorized, err)
	}

	operation := func() error {
		result := r.db.WithContext(ctx).Model(&model.Contact{}).
			Where("id = ?", contactID).
			Updates(map[string]interface{}{
				"avatar_url": avatarURL,
				"updated_at": utils.Now(),
			})
		if result.Error != nil {
			return checkConstraintViolation(result.Error)
		}
		return nil
	}

	commitPolicy := newRetryPolicy(ctx, commitRetryMaxElapsedTime)
	startTime := utils.Now()
	commitErr := retryableOperation(ctx, commitPolicy, "UpdateContactAvatar Commit", operation)
	observer.ObserveDbOperationDuration("update", "contact", accountID, time.Since(startTime), commitErr)

	if commitErr != nil {
		logger.FromContext(ctx).Error("Failed to update contact avatar after retries",
			zap.Int64("contact_id", contactID), zap.Error(commitErr))
	}
	return commitErr
}
