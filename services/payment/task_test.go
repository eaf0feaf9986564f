package payment

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"creatorpay/pkg/config"
	"creatorpay/services/earning"
	"creatorpay/services/gateway"
	"creatorpay/services/user"
)

func newTestTaskHandler(t *testing.T) (*TaskHandler, *Service, *earning.Service) {
	t.Helper()

	service := newTestService(t)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	settings := earning.NewSettings(service.db, nil)
	earnings := earning.NewService(earning.ServiceParams{DB: service.db, Node: node, Settings: settings})

	cfg := &config.Config{}
	cfg.Payment.PendingTTL = 24 * time.Hour

	return NewTaskHandler(service, earnings, cfg), service, earnings
}

func TestProcessPurposeSubscription(t *testing.T) {
	handler, service, _ := newTestTaskHandler(t)
	ctx := context.Background()

	seedUser(t, service, "subscriber")
	seedUser(t, service, "creator")

	record := &Payment{
		ID:            "p-1",
		UserID:        "subscriber",
		Amount:        1000,
		Gateway:       gateway.JazzCash,
		Purpose:       PurposeSubscription,
		ReferenceKind: RefChannel,
		ReferenceID:   "creator",
		Status:        StatusCompleted,
		TransactionID: "t-1",
	}
	require.NoError(t, service.db.Create(record).Error)

	task := asynq.NewTask(TaskProcessPurpose, []byte(`{"paymentId":"p-1"}`))
	require.NoError(t, handler.handleProcessPurpose(ctx, task))

	var entry earning.Earning
	require.NoError(t, service.db.First(&entry, "creator_id = ?", "creator").Error)
	require.Equal(t, earning.SourceSubscription, entry.Source)
	require.Equal(t, float64(1000), entry.Amount)

	var creator user.User
	require.NoError(t, service.db.First(&creator, "id = ?", "creator").Error)
	require.InDelta(t, 700, creator.PendingPayout, 1e-9)
}

func TestProcessPurposeSkipsNonCompleted(t *testing.T) {
	handler, service, _ := newTestTaskHandler(t)
	ctx := context.Background()

	seedUser(t, service, "creator")
	record := &Payment{
		ID:            "p-2",
		UserID:        "subscriber",
		Amount:        1000,
		Gateway:       gateway.JazzCash,
		Purpose:       PurposeSubscription,
		ReferenceKind: RefChannel,
		ReferenceID:   "creator",
		Status:        StatusPending,
		TransactionID: "t-2",
	}
	require.NoError(t, service.db.Create(record).Error)

	task := asynq.NewTask(TaskProcessPurpose, []byte(`{"paymentId":"p-2"}`))
	require.NoError(t, handler.handleProcessPurpose(ctx, task))

	var count int64
	require.NoError(t, service.db.Model(&earning.Earning{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestProcessPurposeUnknownPaymentSkipsRetry(t *testing.T) {
	handler, _, _ := newTestTaskHandler(t)

	task := asynq.NewTask(TaskProcessPurpose, []byte(`{"paymentId":"missing"}`))
	err := handler.handleProcessPurpose(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
