package user

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// Balances groups the atomic mutations of a creator's monetary fields. Every
// mutation is a single UPDATE with the arithmetic pushed into the database,
// so concurrent accruals and withdrawal requests cannot lose writes.
type Balances struct {
	db *gorm.DB
}

func NewBalances(db *gorm.DB) *Balances {
	return &Balances{db: db}
}

func (b *Balances) WithTrx(tx *gorm.DB) *Balances {
	if tx == nil {
		return b
	}
	return &Balances{db: tx}
}

// Accrue adds a creator-share amount to both total_earnings and
// pending_payout.
func (b *Balances) Accrue(ctx context.Context, userID string, creatorShare float64) error {
	return b.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"total_earnings": gorm.Expr("total_earnings + ?", creatorShare),
			"pending_payout": gorm.Expr("pending_payout + ?", creatorShare),
			"updated_at":     time.Now(),
		}).Error
}

// ClaimPendingPayout zeroes pending_payout only if it still holds the value
// the caller snapshotted. A false return means another request spent the
// balance first.
func (b *Balances) ClaimPendingPayout(ctx context.Context, userID string, snapshot float64) (bool, error) {
	res := b.db.WithContext(ctx).Model(&User{}).
		Where("id = ? AND pending_payout = ?", userID, snapshot).
		Updates(map[string]any{
			"pending_payout": 0,
			"updated_at":     time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RestorePendingPayout puts a rejected withdrawal's amount back.
func (b *Balances) RestorePendingPayout(ctx context.Context, userID string, amount float64) error {
	return b.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"pending_payout": gorm.Expr("pending_payout + ?", amount),
			"updated_at":     time.Now(),
		}).Error
}

// RecordPayout stamps the last completed payout onto the user.
func (b *Balances) RecordPayout(ctx context.Context, userID string, amount float64, at time.Time) error {
	return b.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"last_payout_date":   at,
			"last_payout_amount": amount,
			"updated_at":         time.Now(),
		}).Error
}
