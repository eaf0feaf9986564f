package earning

import (
	"context"
	"encoding/json"
	"time"

	"creatorpay/pkg/errutil"
	"creatorpay/pkg/rediskey"
	"creatorpay/pkg/repository"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const settingsCacheTTL = 5 * time.Minute

// Settings serves the monetization settings singleton. The row is seeded on
// first read with an insert that ignores conflicts on the fixed key, so
// concurrent first reads cannot create duplicates. Reads go through Redis
// when a client is wired; updates invalidate the cache.
type Settings struct {
	db    *gorm.DB
	redis *goredis.Client
	store repository.Repository[MonetizationSettings]
	group singleflight.Group
}

func NewSettings(db *gorm.DB, redis *goredis.Client) *Settings {
	return &Settings{
		db:    db,
		redis: redis,
		store: repository.ProvideStore[MonetizationSettings](db),
	}
}

func (s *Settings) Get(ctx context.Context) (*MonetizationSettings, error) {
	if cached := s.fromCache(ctx); cached != nil {
		return cached, nil
	}

	// Collapse concurrent cache misses into one database load.
	v, err, _ := s.group.Do(rediskey.MonetizationSettingsKey, func() (interface{}, error) {
		return s.load(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*MonetizationSettings), nil
}

func (s *Settings) load(ctx context.Context) (*MonetizationSettings, error) {
	defaults := DefaultSettings()
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&defaults).Error; err != nil {
		return nil, err
	}

	settings, err := s.store.FindOne(ctx, &MonetizationSettings{ID: SettingsID})
	if err != nil {
		return nil, err
	}
	if settings == nil {
		return nil, errutil.Internal("monetization settings row missing after seed", nil)
	}

	s.toCache(ctx, settings)
	return settings, nil
}

// UpdateSettingsRequest carries the admin-editable fields. Nil means leave
// unchanged.
type UpdateSettingsRequest struct {
	ViewEarningRate         *float64 `json:"viewEarningRate"`
	AdImpressionRate        *float64 `json:"adImpressionRate"`
	AdClickRate             *float64 `json:"adClickRate"`
	SubscriptionSharingRate *float64 `json:"subscriptionSharingRate"`
	MinimumPayoutAmount     *float64 `json:"minimumPayoutAmount"`
	JazzCashEnabled         *bool    `json:"jazzCashEnabled"`
	EasyPaisaEnabled        *bool    `json:"easyPaisaEnabled"`
	PayFastEnabled          *bool    `json:"payFastEnabled"`
	BankTransferEnabled     *bool    `json:"bankTransferEnabled"`
}

func (r UpdateSettingsRequest) validate() error {
	for _, rate := range []*float64{r.ViewEarningRate, r.AdImpressionRate, r.AdClickRate, r.MinimumPayoutAmount} {
		if rate != nil && *rate < 0 {
			return errutil.ValidationFailed("rates must not be negative", nil)
		}
	}
	if r.SubscriptionSharingRate != nil && (*r.SubscriptionSharingRate < 0 || *r.SubscriptionSharingRate > 100) {
		return errutil.ValidationFailed("subscriptionSharingRate must be between 0 and 100", nil)
	}
	return nil
}

func (s *Settings) Update(ctx context.Context, updatedBy string, req UpdateSettingsRequest) (*MonetizationSettings, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if req.ViewEarningRate != nil {
		current.ViewEarningRate = *req.ViewEarningRate
	}
	if req.AdImpressionRate != nil {
		current.AdImpressionRate = *req.AdImpressionRate
	}
	if req.AdClickRate != nil {
		current.AdClickRate = *req.AdClickRate
	}
	if req.SubscriptionSharingRate != nil {
		current.SubscriptionSharingRate = *req.SubscriptionSharingRate
	}
	if req.MinimumPayoutAmount != nil {
		current.MinimumPayoutAmount = *req.MinimumPayoutAmount
	}
	if req.JazzCashEnabled != nil {
		current.JazzCashEnabled = *req.JazzCashEnabled
	}
	if req.EasyPaisaEnabled != nil {
		current.EasyPaisaEnabled = *req.EasyPaisaEnabled
	}
	if req.PayFastEnabled != nil {
		current.PayFastEnabled = *req.PayFastEnabled
	}
	if req.BankTransferEnabled != nil {
		current.BankTransferEnabled = *req.BankTransferEnabled
	}
	current.UpdatedBy = updatedBy

	if err := s.db.WithContext(ctx).Save(current).Error; err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.toCache(ctx, current)

	zap.L().Info("monetization settings updated", zap.String("updated_by", updatedBy))
	return current, nil
}

func (s *Settings) fromCache(ctx context.Context) *MonetizationSettings {
	if s.redis == nil {
		return nil
	}

	raw, err := s.redis.Get(ctx, rediskey.MonetizationSettingsKey).Bytes()
	if err != nil {
		return nil
	}

	var settings MonetizationSettings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil
	}
	settings.ID = SettingsID
	return &settings
}

func (s *Settings) toCache(ctx context.Context, settings *MonetizationSettings) {
	if s.redis == nil {
		return
	}

	raw, err := json.Marshal(settings)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, rediskey.MonetizationSettingsKey, raw, settingsCacheTTL).Err(); err != nil {
		zap.L().Warn("failed to cache monetization settings", zap.Error(err))
	}
}

func (s *Settings) invalidate(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, rediskey.MonetizationSettingsKey).Err(); err != nil {
		zap.L().Warn("failed to invalidate monetization settings cache", zap.Error(err))
	}
}
