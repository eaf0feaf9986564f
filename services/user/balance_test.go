package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creatorpay/services/testutil"
)

func TestAccrue(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	require.NoError(t, db.Create(&User{ID: "u-1"}).Error)

	balances := NewBalances(db)
	ctx := context.Background()

	require.NoError(t, balances.Accrue(ctx, "u-1", 10.5))
	require.NoError(t, balances.Accrue(ctx, "u-1", 4.5))

	var got User
	require.NoError(t, db.First(&got, "id = ?", "u-1").Error)
	require.InDelta(t, 15, got.TotalEarnings, 1e-9)
	require.InDelta(t, 15, got.PendingPayout, 1e-9)
}

func TestClaimPendingPayout(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	require.NoError(t, db.Create(&User{ID: "u-1", PendingPayout: 100}).Error)

	balances := NewBalances(db)
	ctx := context.Background()

	// stale snapshot loses
	claimed, err := balances.ClaimPendingPayout(ctx, "u-1", 50)
	require.NoError(t, err)
	require.False(t, claimed)

	claimed, err = balances.ClaimPendingPayout(ctx, "u-1", 100)
	require.NoError(t, err)
	require.True(t, claimed)

	// second claim of the same snapshot finds nothing left
	claimed, err = balances.ClaimPendingPayout(ctx, "u-1", 100)
	require.NoError(t, err)
	require.False(t, claimed)

	var got User
	require.NoError(t, db.First(&got, "id = ?", "u-1").Error)
	require.Zero(t, got.PendingPayout)
}

func TestRestoreAndRecordPayout(t *testing.T) {
	db := testutil.NewTestDB(t, &User{})
	require.NoError(t, db.Create(&User{ID: "u-1"}).Error)

	balances := NewBalances(db)
	ctx := context.Background()

	require.NoError(t, balances.RestorePendingPayout(ctx, "u-1", 250))

	at := time.Now()
	require.NoError(t, balances.RecordPayout(ctx, "u-1", 250, at))

	var got User
	require.NoError(t, db.First(&got, "id = ?", "u-1").Error)
	require.InDelta(t, 250, got.PendingPayout, 1e-9)
	require.InDelta(t, 250, got.LastPayoutAmount, 1e-9)
	require.NotNil(t, got.LastPayoutDate)
}

func TestMethodDetails(t *testing.T) {
	u := &User{}
	details, err := u.MethodDetails()
	require.NoError(t, err)
	require.False(t, details.HasMethod("jazzcash"))

	u.PaymentMethods = []byte(`{"jazzCash":{"accountTitle":"A","mobileNumber":"0300"},"bankDetails":{"accountTitle":"A","accountNumber":"1","bankName":"HBL"}}`)
	details, err = u.MethodDetails()
	require.NoError(t, err)
	require.True(t, details.HasMethod("jazzcash"))
	require.True(t, details.HasMethod("bank_transfer"))
	require.False(t, details.HasMethod("easypaisa"))
	require.False(t, details.HasMethod("paypal"))
}
