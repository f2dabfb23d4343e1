package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/daniel-neiva/nexcrm-sub000/internal/apperrors"
	"github.com/daniel-neiva/nexcrm-sub000/internal/model"
)

func TestPostgresRepo_InsertRawEvent_Inserted(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()
	event := model.NewRawEvent(&model.RawEvent{ID: "evt-1", EventKey: "inst:messages.upsert:ABC"})

	mock.ExpectExec(`INSERT INTO "raw_events" .* ON CONFLICT .* DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inserted, err := repo.InsertRawEvent(ctx, event)
	assert.NoError(t, err)
	assert.True(t, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_InsertRawEvent_Duplicate(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()
	event := model.NewRawEvent(&model.RawEvent{ID: "evt-2", EventKey: "inst:messages.upsert:ABC"})

	mock.ExpectExec(`INSERT INTO "raw_events" .* ON CONFLICT .* DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	inserted, err := repo.InsertRawEvent(ctx, event)
	assert.NoError(t, err)
	assert.False(t, inserted, "conflicting event key should not report an insert")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_InsertRawEvent_MissingAccount(t *testing.T) {
	repo, mock := newMockRepo(t)
	event := model.NewRawEvent()

	_, err := repo.InsertRawEvent(context.Background(), event)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindRawEventByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	rows := sqlmock.NewRows([]string{"id", "instance", "event_type", "event_key", "processed"}).
		AddRow("evt-3", "inst_a", model.EventMessageReceived, "inst_a:messages.upsert:XYZ", false)
	mock.ExpectQuery(`SELECT \* FROM "raw_events" WHERE id = .*`).
		WithArgs("evt-3", 1).
		WillReturnRows(rows)

	event, err := repo.FindRawEventByID(ctx, "evt-3")
	assert.NoError(t, err)
	assert.Equal(t, "evt-3", event.ID)
	assert.Equal(t, model.EventMessageReceived, event.EventType)
	assert.False(t, event.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindRawEventByID_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	mock.ExpectQuery(`SELECT \* FROM "raw_events" WHERE id = .*`).
		WithArgs("missing", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.FindRawEventByID(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_FindRawEventByKey(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	rows := sqlmock.NewRows([]string{"id", "instance", "event_type", "event_key", "processed"}).
		AddRow("evt-3", "inst_a", model.EventMessageReceived, "inst_a:messages.upsert:XYZ", true)
	mock.ExpectQuery(`SELECT \* FROM "raw_events" WHERE event_key = .*`).
		WithArgs("inst_a:messages.upsert:XYZ", 1).
		WillReturnRows(rows)

	event, err := repo.FindRawEventByKey(ctx, "inst_a:messages.upsert:XYZ")
	assert.NoError(t, err)
	assert.Equal(t, "evt-3", event.ID)
	assert.True(t, event.Processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkEventIgnored(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	// Processed flag and the ignore reason land in one update so the reason
	// is never overwritten by a separate processed write.
	mock.ExpectExec(`UPDATE "raw_events" SET .* WHERE id = .*`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkEventIgnored(ctx, "evt-6", "ignored: no inbox registered for instance inst_b")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkEventIgnored_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	mock.ExpectExec(`UPDATE "raw_events" SET .* WHERE id = .*`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkEventIgnored(ctx, "missing", "ignored: no inbox registered for instance inst_b")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkEventProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	mock.ExpectExec(`UPDATE "raw_events" SET .* WHERE id = .*`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkEventProcessed(ctx, "evt-4")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_MarkEventProcessed_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	mock.ExpectExec(`UPDATE "raw_events" SET .* WHERE id = .*`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkEventProcessed(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_RecordEventError(t *testing.T) {
	repo, mock := newMockRepo(t)
	ctx := contextWithAccount()

	mock.ExpectExec(`UPDATE "raw_events" SET "error"=.* WHERE id = .*`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordEventError(ctx, "evt-5", "normalize: unsupported variant")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
