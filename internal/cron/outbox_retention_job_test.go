package cron

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/orderflowhq/orderflow-backend/pkg/db/models"
	"github.com/orderflowhq/orderflow-backend/pkg/enums"
	"github.com/orderflowhq/orderflow-backend/pkg/outbox"
)

func insertOutboxRow(t *testing.T, f *cronFixture, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   publishedAt,
	}
	require.NoError(t, f.conn.Create(&row).Error)
	return row.ID
}

func TestOutboxRetentionDeletesOnlyOldPublishedRows(t *testing.T) {
	f := setupCronFixture(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-40 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	oldPublished := insertOutboxRow(t, f, &old)
	recentPublished := insertOutboxRow(t, f, &recent)
	oldUnpublished := insertOutboxRow(t, f, nil)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     f.logg,
		DB:         f.client,
		Repository: outbox.NewRepository(f.conn),
		Retention:  30,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(ctx))

	var ids []uuid.UUID
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Pluck("id", &ids).Error)
	require.ElementsMatch(t, []uuid.UUID{recentPublished, oldUnpublished}, ids)
	require.NotContains(t, ids, oldPublished)
}

func TestOutboxRetentionDefaultsRetention(t *testing.T) {
	f := setupCronFixture(t)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     f.logg,
		DB:         f.client,
		Repository: outbox.NewRepository(f.conn),
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
}
