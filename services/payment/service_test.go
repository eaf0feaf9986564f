package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db/pagination"
	"creatorpay/services/earning"
	"creatorpay/services/gateway"
	"creatorpay/services/testutil"
	"creatorpay/services/user"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testSalt = "integrity-salt"

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &user.User{}, &Payment{}, &earning.Earning{}, &earning.MonetizationSettings{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := gateway.NewRegistry(
		gateway.NewJazzCash(config.GatewayConfig{
			Enabled:    true,
			MerchantID: "MC10001",
			Password:   "pw",
			Secret:     testSalt,
			Endpoint:   "https://sandbox.jazzcash.com.pk/pay",
		}),
		gateway.NewEasyPaisa(config.GatewayConfig{
			Enabled:    true,
			MerchantID: "store-1",
			Secret:     "hash-key",
			Endpoint:   "https://easypaisa.com.pk/pay",
		}),
	)

	settings := earning.NewSettings(db, nil)
	return NewService(ServiceParams{
		DB:       db,
		Node:     node,
		Registry: registry,
		Settings: settings,
	})
}

func seedUser(t *testing.T, s *Service, id string) {
	t.Helper()
	require.NoError(t, s.db.Create(&user.User{
		ID:          id,
		DisplayName: "User " + id,
		Email:       id + "@example.com",
	}).Error)
}

// jazzCashHash mirrors the provider-side hash so callbacks in tests carry a
// verifiable signature.
func jazzCashHash(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "pp_SecureHash" || params[k] == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{testSalt}
	for _, k := range keys {
		parts = append(parts, params[k])
	}

	mac := hmac.New(sha256.New, []byte(testSalt))
	mac.Write([]byte(strings.Join(parts, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func jazzCashCallback(txnRef, responseCode string) map[string]string {
	params := map[string]string{
		"pp_TxnRefNo":     txnRef,
		"pp_Amount":       "50000",
		"pp_ResponseCode": responseCode,
	}
	params["pp_SecureHash"] = jazzCashHash(params)
	return params
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusPending.CanTransition(StatusCompleted))
	require.True(t, StatusPending.CanTransition(StatusFailed))
	require.True(t, StatusCompleted.CanTransition(StatusRefunded))

	require.False(t, StatusCompleted.CanTransition(StatusPending))
	require.False(t, StatusFailed.CanTransition(StatusCompleted))
	require.False(t, StatusRefunded.CanTransition(StatusPending))

	require.True(t, StatusFailed.Terminal())
	require.True(t, StatusRefunded.Terminal())
	require.False(t, StatusPending.Terminal())
}

func TestValidReference(t *testing.T) {
	require.True(t, ValidReference(PurposeSubscription, RefChannel, "ch-1"))
	require.False(t, ValidReference(PurposeSubscription, RefChannel, ""))
	require.False(t, ValidReference(PurposeSubscription, RefVideo, "vid-1"))
	require.True(t, ValidReference(PurposePremium, RefNone, ""))
	require.False(t, ValidReference(PurposePremium, RefNone, "x"))
	require.True(t, ValidReference(PurposeDonation, RefLivestream, "ls-1"))
	require.False(t, ValidReference(Purpose("bogus"), RefNone, ""))
}

func TestInitiate(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  500,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.PaymentID)
	require.NotEmpty(t, resp.TransactionID)
	require.NotEmpty(t, resp.FormData["pp_SecureHash"])

	stored, err := service.payments.FindOne(ctx, &Payment{TransactionID: resp.TransactionID})
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, StatusPending, stored.Status)
	require.Equal(t, resp.PaymentID, stored.ID)
}

func TestInitiateValidation(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	_, err := service.Initiate(ctx, "u-1", InitiateRequest{Gateway: gateway.JazzCash, Amount: 0, Purpose: PurposePremium})
	require.Error(t, err)

	_, err = service.Initiate(ctx, "u-1", InitiateRequest{Gateway: "stripe", Amount: 100, Purpose: PurposePremium})
	require.Error(t, err)

	_, err = service.Initiate(ctx, "u-1", InitiateRequest{Gateway: gateway.JazzCash, Amount: 100, Purpose: PurposeSubscription})
	require.Error(t, err)

	_, err = service.Initiate(ctx, "ghost", InitiateRequest{Gateway: gateway.JazzCash, Amount: 100, Purpose: PurposePremium})
	require.Error(t, err)

	// payfast is not registered in this harness
	_, err = service.Initiate(ctx, "u-1", InitiateRequest{Gateway: gateway.PayFast, Amount: 100, Purpose: PurposePremium})
	require.Error(t, err)
}

func TestCallbackCompletesAndRepeats(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  500,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)

	params := jazzCashCallback(resp.TransactionID, "000")

	outcome, err := service.HandleCallback(ctx, gateway.JazzCash, params, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, outcome.Applied)
	require.True(t, outcome.Successful)
	require.Equal(t, StatusCompleted, outcome.Payment.Status)
	require.NotEmpty(t, outcome.Payment.GatewayResponse)

	// same delivery again: no error, no double apply
	again, err := service.HandleCallback(ctx, gateway.JazzCash, params, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.True(t, again.Duplicate)
	require.Equal(t, StatusCompleted, again.Payment.Status)
}

func TestCallbackRejectsTampering(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  500,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)

	params := jazzCashCallback(resp.TransactionID, "000")
	params["pp_Amount"] = "1"

	_, err = service.HandleCallback(ctx, gateway.JazzCash, params, "10.0.0.1")
	require.Error(t, err)

	stored, err := service.payments.FindOne(ctx, &Payment{TransactionID: resp.TransactionID})
	require.NoError(t, err)
	require.Equal(t, StatusPending, stored.Status)
}

func TestCallbackFailure(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  500,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)

	outcome, err := service.HandleCallback(ctx, gateway.JazzCash, jazzCashCallback(resp.TransactionID, "121"), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, outcome.Applied)
	require.False(t, outcome.Successful)
	require.Equal(t, StatusFailed, outcome.Payment.Status)
	require.NotEmpty(t, outcome.Payment.ErrorMessage)
}

func TestCallbackUnknownTransaction(t *testing.T) {
	service := newTestService(t)

	_, err := service.HandleCallback(context.Background(), gateway.JazzCash, jazzCashCallback("T000", "000"), "10.0.0.1")
	require.Error(t, err)
}

func TestCancelByUser(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  500,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)

	outcome, err := service.CancelByUser(ctx, resp.TransactionID)
	require.NoError(t, err)
	require.True(t, outcome.Applied)
	require.Equal(t, StatusFailed, outcome.Payment.Status)
	require.Equal(t, "Payment cancelled by user", outcome.Payment.ErrorMessage)

	// cancelling again cannot resurrect or re-fail the payment
	again, err := service.CancelByUser(ctx, resp.TransactionID)
	require.NoError(t, err)
	require.False(t, again.Applied)
	require.True(t, again.Duplicate)
}

func TestGetDetailsAuthorization(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	resp, err := service.Initiate(ctx, "u-1", InitiateRequest{
		Gateway: gateway.JazzCash,
		Amount:  100,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)

	_, err = service.GetDetails(ctx, "u-1", false, resp.PaymentID)
	require.NoError(t, err)

	_, err = service.GetDetails(ctx, "u-2", false, resp.PaymentID)
	require.Error(t, err)

	_, err = service.GetDetails(ctx, "u-2", true, resp.PaymentID)
	require.NoError(t, err)

	_, err = service.GetDetails(ctx, "u-1", false, "missing")
	require.Error(t, err)
}

func TestInitiatePassesPayerPhone(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	require.NoError(t, service.db.Create(&user.User{
		ID:          "u-ph",
		DisplayName: "User u-ph",
		Email:       "u-ph@example.com",
		Phone:       "03001234567",
	}).Error)

	resp, err := service.Initiate(ctx, "u-ph", InitiateRequest{
		Gateway: gateway.EasyPaisa,
		Amount:  250,
		Purpose: PurposePremium,
	})
	require.NoError(t, err)
	require.Equal(t, "03001234567", resp.FormData["mobileNum"])
}

func TestHistoryPagination(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()
	seedUser(t, service, "u-1")

	for i := 0; i < 5; i++ {
		_, err := service.Initiate(ctx, "u-1", InitiateRequest{
			Gateway: gateway.JazzCash,
			Amount:  100,
			Purpose: PurposePremium,
		})
		require.NoError(t, err)
	}

	first, page, err := service.History(ctx, "u-1", pagination.Pagination{Limit: 3})
	require.NoError(t, err)
	require.Len(t, first, 3)
	require.True(t, page.HasMore)
	require.NotEmpty(t, page.NextCursor)

	rest, page, err := service.History(ctx, "u-1", pagination.Pagination{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.False(t, page.HasMore)

	seen := map[string]bool{}
	for _, r := range append(first, rest...) {
		require.False(t, seen[r.ID])
		seen[r.ID] = true
	}
}

func TestExpireStalePending(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	stale := &Payment{
		ID:            "p-old",
		UserID:        "u-1",
		Amount:        100,
		Gateway:       gateway.JazzCash,
		Purpose:       PurposePremium,
		Status:        StatusPending,
		TransactionID: "t-old",
	}
	require.NoError(t, service.db.Create(stale).Error)
	require.NoError(t, service.db.Model(stale).Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	fresh := &Payment{
		ID:            "p-new",
		UserID:        "u-1",
		Amount:        100,
		Gateway:       gateway.JazzCash,
		Purpose:       PurposePremium,
		Status:        StatusPending,
		TransactionID: "t-new",
	}
	require.NoError(t, service.db.Create(fresh).Error)

	count, err := service.ExpireStalePending(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	var got Payment
	require.NoError(t, service.db.First(&got, "id = ?", "p-old").Error)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "expired awaiting gateway callback", got.ErrorMessage)

	got = Payment{}
	require.NoError(t, service.db.First(&got, "id = ?", "p-new").Error)
	require.Equal(t, StatusPending, got.Status)
}
