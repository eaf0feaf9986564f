package earning

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"creatorpay/services/testutil"
)

func TestSettingsSeededOnFirstRead(t *testing.T) {
	db := testutil.NewTestDB(t, &MonetizationSettings{})
	settings := NewSettings(db, nil)
	ctx := context.Background()

	got, err := settings.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 0.005, got.ViewEarningRate)
	require.Equal(t, float64(70), got.SubscriptionSharingRate)
	require.Equal(t, float64(1000), got.MinimumPayoutAmount)

	var count int64
	require.NoError(t, db.Model(&MonetizationSettings{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSettingsConcurrentFirstReadSingleRow(t *testing.T) {
	db := testutil.NewTestDB(t, &MonetizationSettings{})
	settings := NewSettings(db, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := settings.Get(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var count int64
	require.NoError(t, db.Model(&MonetizationSettings{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSettingsUpdate(t *testing.T) {
	db := testutil.NewTestDB(t, &MonetizationSettings{})
	settings := NewSettings(db, nil)
	ctx := context.Background()

	rate := 0.02
	enabled := false
	got, err := settings.Update(ctx, "admin-1", UpdateSettingsRequest{
		ViewEarningRate: &rate,
		PayFastEnabled:  &enabled,
	})
	require.NoError(t, err)
	require.Equal(t, 0.02, got.ViewEarningRate)
	require.False(t, got.PayFastEnabled)
	require.Equal(t, "admin-1", got.UpdatedBy)

	// untouched fields keep their defaults
	require.Equal(t, float64(70), got.SubscriptionSharingRate)

	reread, err := settings.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, 0.02, reread.ViewEarningRate)

	// still a single row
	var count int64
	require.NoError(t, db.Model(&MonetizationSettings{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSettingsUpdateValidation(t *testing.T) {
	db := testutil.NewTestDB(t, &MonetizationSettings{})
	settings := NewSettings(db, nil)

	bad := -1.0
	_, err := settings.Update(context.Background(), "admin-1", UpdateSettingsRequest{ViewEarningRate: &bad})
	require.Error(t, err)

	over := 101.0
	_, err = settings.Update(context.Background(), "admin-1", UpdateSettingsRequest{SubscriptionSharingRate: &over})
	require.Error(t, err)
}

func TestGatewayEnabled(t *testing.T) {
	m := DefaultSettings()
	require.True(t, m.GatewayEnabled("jazzcash"))
	require.True(t, m.GatewayEnabled("bank_transfer"))
	require.False(t, m.GatewayEnabled("paypal"))
}
