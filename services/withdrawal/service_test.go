package withdrawal

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"creatorpay/services/earning"
	"creatorpay/services/testutil"
	"creatorpay/services/user"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type stubRefs struct {
	n int64
}

func (s *stubRefs) NextWithdrawalRef(ctx context.Context) (string, error) {
	return fmt.Sprintf("WDR-TEST-%03d", atomic.AddInt64(&s.n, 1)), nil
}

func newTestService(t *testing.T) (*Service, *earning.Service) {
	t.Helper()

	db := testutil.NewTestDB(t, &user.User{}, &Withdrawal{}, &earning.Earning{}, &earning.MonetizationSettings{})

	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	settings := earning.NewSettings(db, nil)
	earnings := earning.NewService(earning.ServiceParams{DB: db, Node: node, Settings: settings})

	service := NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Refs:     &stubRefs{},
		Settings: settings,
		Earnings: earnings,
	})
	return service, earnings
}

func seedCreator(t *testing.T, s *Service, id string, pending float64) {
	t.Helper()

	methods := datatypes.JSON([]byte(`{"jazzCash":{"accountTitle":"Creator","mobileNumber":"03001234567"}}`))
	require.NoError(t, s.db.Create(&user.User{
		ID:             id,
		DisplayName:    "Creator " + id,
		IsMonetized:    true,
		TotalEarnings:  pending,
		PendingPayout:  pending,
		PaymentMethods: methods,
	}).Error)
}

func TestRequest(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 1500)

	record, err := service.Request(ctx, "u-1", RequestPayload{PaymentMethod: "jazzcash"})
	require.NoError(t, err)
	require.Equal(t, TypeCreator, record.Type)
	require.Equal(t, StatusPending, record.Status)
	require.Equal(t, float64(1500), record.Amount)
	require.Contains(t, string(record.PaymentDetails), "03001234567")
	require.NotEmpty(t, record.TransactionReference)

	var creator user.User
	require.NoError(t, service.db.First(&creator, "id = ?", "u-1").Error)
	require.Zero(t, creator.PendingPayout)
}

func TestRequestValidation(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()

	// unknown user
	_, err := service.Request(ctx, "ghost", RequestPayload{PaymentMethod: "jazzcash"})
	require.Error(t, err)

	// not monetized
	require.NoError(t, service.db.Create(&user.User{ID: "u-2", PendingPayout: 5000}).Error)
	_, err = service.Request(ctx, "u-2", RequestPayload{PaymentMethod: "jazzcash"})
	require.Error(t, err)

	// below the minimum payout
	seedCreator(t, service, "u-3", 500)
	_, err = service.Request(ctx, "u-3", RequestPayload{PaymentMethod: "jazzcash"})
	require.Error(t, err)

	// no stored details for the chosen method
	seedCreator(t, service, "u-4", 1500)
	_, err = service.Request(ctx, "u-4", RequestPayload{PaymentMethod: "easypaisa"})
	require.Error(t, err)

	// unsupported method
	_, err = service.Request(ctx, "u-4", RequestPayload{PaymentMethod: "paypal"})
	require.Error(t, err)
}

func TestConcurrentRequestsClaimOnce(t *testing.T) {
	service, _ := newTestService(t)
	seedCreator(t, service, "u-1", 2000)

	const attempts = 8
	var wg sync.WaitGroup
	var succeeded int64

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := service.Request(context.Background(), "u-1", RequestPayload{PaymentMethod: "jazzcash"}); err == nil {
				atomic.AddInt64(&succeeded, 1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, succeeded)

	var creator user.User
	require.NoError(t, service.db.First(&creator, "id = ?", "u-1").Error)
	require.Zero(t, creator.PendingPayout)

	var total float64
	require.NoError(t, service.db.Model(&Withdrawal{}).
		Where("user_id = ?", "u-1").
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error)
	require.Equal(t, float64(2000), total)
}

func TestProcessLifecycle(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 1500)

	record, err := service.Request(ctx, "u-1", RequestPayload{PaymentMethod: "jazzcash"})
	require.NoError(t, err)

	record, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusProcessing})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, record.Status)
	require.Equal(t, "admin-1", record.ProcessedBy)

	record, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusCompleted})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, record.Status)
	require.NotNil(t, record.ProcessedAt)

	var creator user.User
	require.NoError(t, service.db.First(&creator, "id = ?", "u-1").Error)
	require.Equal(t, float64(1500), creator.LastPayoutAmount)
	require.NotNil(t, creator.LastPayoutDate)

	// terminal withdrawals cannot be reprocessed
	_, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusRejected, RejectionReason: "x"})
	require.Error(t, err)
}

func TestRejectCreatorRestoresBalance(t *testing.T) {
	service, _ := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 1500)

	record, err := service.Request(ctx, "u-1", RequestPayload{PaymentMethod: "jazzcash"})
	require.NoError(t, err)

	// reason is mandatory
	_, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusRejected})
	require.Error(t, err)

	record, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusRejected, RejectionReason: "details mismatch"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, record.Status)
	require.Equal(t, "details mismatch", record.RejectionReason)

	var creator user.User
	require.NoError(t, service.db.First(&creator, "id = ?", "u-1").Error)
	require.Equal(t, float64(1500), creator.PendingPayout)
}

func TestRejectAdminTouchesNoBalance(t *testing.T) {
	service, earnings := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 0)

	// platform revenue to draw from
	_, err := earnings.RecordSubscription(ctx, "u-1", 10000, "pay-1")
	require.NoError(t, err)

	record, err := service.AdminRequest(ctx, "admin-1", AdminRequestPayload{Amount: 1000, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)
	require.Equal(t, TypeAdmin, record.Type)

	var before user.User
	require.NoError(t, service.db.First(&before, "id = ?", "u-1").Error)

	_, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusRejected, RejectionReason: "cancelled"})
	require.NoError(t, err)

	var after user.User
	require.NoError(t, service.db.First(&after, "id = ?", "u-1").Error)
	require.Equal(t, before.PendingPayout, after.PendingPayout)
}

func TestAdminRequestBoundedByRevenue(t *testing.T) {
	service, earnings := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 0)

	// 10000 at the default 30% cut leaves 3000 for the platform
	_, err := earnings.RecordSubscription(ctx, "u-1", 10000, "pay-1")
	require.NoError(t, err)

	_, err = service.AdminRequest(ctx, "admin-1", AdminRequestPayload{Amount: 5000, PaymentMethod: "bank_transfer"})
	require.Error(t, err)

	record, err := service.AdminRequest(ctx, "admin-1", AdminRequestPayload{Amount: 2000, PaymentMethod: "bank_transfer"})
	require.NoError(t, err)

	// completing it shrinks what the next request can draw
	_, err = service.Process(ctx, "admin-1", record.ID, ProcessPayload{Status: StatusCompleted})
	require.NoError(t, err)

	_, err = service.AdminRequest(ctx, "admin-1", AdminRequestPayload{Amount: 1500, PaymentMethod: "bank_transfer"})
	require.Error(t, err)

	available, err := service.AvailablePlatformRevenue(ctx)
	require.NoError(t, err)
	require.InDelta(t, 1000, available, 1e-9)
}

func TestPlatformRevenueReport(t *testing.T) {
	service, earnings := newTestService(t)
	ctx := context.Background()
	seedCreator(t, service, "u-1", 0)

	_, err := earnings.RecordSubscription(ctx, "u-1", 10000, "pay-1")
	require.NoError(t, err)

	window := earning.Window{Start: time.Now().Add(-time.Hour), End: time.Now().Add(time.Hour)}
	report, err := service.PlatformRevenue(ctx, window)
	require.NoError(t, err)
	require.InDelta(t, 3000, report.PlatformRevenue, 1e-9)
	require.Zero(t, report.AdminWithdrawn)
	require.InDelta(t, 3000, report.Available, 1e-9)
}
