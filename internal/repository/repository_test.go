package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-coin/mintviewer/internal/models"
	"github.com/core-coin/mintviewer/pkg/logger"
)

var _ models.Repository = (*DB)(nil)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := NewSQLiteDB(dsn, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestInsertSubscriptionIfAbsentIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	first := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, db.InsertSubscriptionIfAbsent(ctx, 42, first))
	require.NoError(t, db.InsertSubscriptionIfAbsent(ctx, 42, first.Add(time.Hour)))

	var count int64
	require.NoError(t, db.Conn.Model(&models.Subscription{}).Where("chat_id = ?", 42).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	sub, err := db.GetSubscription(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.True(t, first.Equal(sub.SubscriptionDate), "first payment date must be kept, got %s", sub.SubscriptionDate)
}

func TestLoadSubscriberIDs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	ids, err := db.LoadSubscriberIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	now := time.Now()
	require.NoError(t, db.InsertSubscriptionIfAbsent(ctx, 1, now))
	require.NoError(t, db.InsertSubscriptionIfAbsent(ctx, -100500, now))
	require.NoError(t, db.InsertSubscriptionIfAbsent(ctx, 1, now))

	ids, err = db.LoadSubscriberIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []models.RecipientID{1, -100500}, ids)
}

func TestGetSubscriptionMissing(t *testing.T) {
	db := newTestDB(t)
	sub, err := db.GetSubscription(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestPostgresDSN(t *testing.T) {
	assert.Equal(t,
		"host=localhost user=u password=p dbname=mintviewer port=5432 sslmode=disable",
		PostgresDSN("u", "p", "mintviewer", "localhost", 5432))
}
