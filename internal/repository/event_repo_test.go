package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/qs3c/installment_billing/internal/model"
	"github.com/qs3c/installment_billing/internal/testutil"
)

func TestEventRepository_RecordDeduplicates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewEventRepository(db)
	ctx := context.Background()

	first, err := repo.Record(ctx, &model.ProcessorEvent{
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
		Source:    "combined_reminder",
		Metadata:  datatypes.JSONMap{"parent_id": "7"},
	})
	require.NoError(t, err)
	assert.NotZero(t, first.ID)

	require.NoError(t, repo.MarkProcessed(ctx, first.ID, testutil.Date(2025, time.March, 1), ""))

	again, err := repo.Record(ctx, &model.ProcessorEvent{
		EventID:   "evt_1",
		EventType: "checkout.session.completed",
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.NotNil(t, again.ProcessedAt)
	assert.Equal(t, "7", again.Metadata["parent_id"])

	var count int64
	require.NoError(t, db.Model(&model.ProcessorEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestEventRepository_MarkProcessedWithError(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.CleanupTestDB(t, db)

	repo := NewEventRepository(db)
	ctx := context.Background()

	event, err := repo.Record(ctx, &model.ProcessorEvent{EventID: "evt_2", EventType: "payment_intent.succeeded"})
	require.NoError(t, err)

	require.NoError(t, repo.MarkProcessed(ctx, event.ID, time.Now(), "database is locked"))

	found, err := repo.GetByEventID(ctx, "evt_2")
	require.NoError(t, err)
	assert.Nil(t, found.ProcessedAt)
	assert.Equal(t, "database is locked", found.ProcessingError)
}
