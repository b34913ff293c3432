package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/besikta/inspection-server/internal/models"
)

func notification() models.Notification {
	return models.Notification{
		ID:            uuid.New(),
		Kind:          models.NotifyOfferFollowUp,
		OfferID:       "o1",
		ReportID:      "r1",
		BranchID:      "b1",
		RecipientRole: models.RoleCustomer,
		Attempt:       2,
		CreatedAt:     time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC),
	}
}

func TestStreamDispatch(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	n := notification()
	require.NoError(t, NewStream(client, "", 1000).Dispatch(ctx, n))

	msgs, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, string(models.NotifyOfferFollowUp), msgs[0].Values["kind"])

	var got models.Notification
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got))
	assert.Equal(t, n, got)
}

func TestStreamDispatchError(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	err := NewStream(client, "x", 0).Dispatch(context.Background(), notification())
	assert.Error(t, err)
}

func TestRecorderAndLog(t *testing.T) {
	ctx := context.Background()
	var rec Recorder
	require.NoError(t, rec.Dispatch(ctx, notification()))
	assert.Equal(t, []models.NotificationKind{models.NotifyOfferFollowUp}, rec.Kinds())
	assert.Len(t, rec.Sent(), 1)

	assert.NoError(t, NewLog(zap.NewNop().Sugar()).Dispatch(ctx, notification()))
}
