package earning

import (
	"time"

	"gorm.io/datatypes"
)

// Source is the monetizable event type an Earning records.
type Source string

var (
	SourceVideoView      Source = "video_view"
	SourceLivestreamView Source = "livestream_view"
	SourceAdImpression   Source = "ad_impression"
	SourceAdClick        Source = "ad_click"
	SourceSubscription   Source = "subscription"
)

func (s Source) Valid() bool {
	switch s {
	case SourceVideoView, SourceLivestreamView, SourceAdImpression, SourceAdClick, SourceSubscription:
		return true
	default:
		return false
	}
}

// ContentKind tags which content table ContentID points at.
type ContentKind string

var (
	ContentVideo      ContentKind = "video"
	ContentLivestream ContentKind = "livestream"
)

// contentKindsBySource is the allowed content kind per source. Subscription
// earnings are tied to the channel, not a piece of content.
var contentKindsBySource = map[Source]map[ContentKind]bool{
	SourceVideoView:      {ContentVideo: true},
	SourceLivestreamView: {ContentLivestream: true},
	SourceAdImpression:   {ContentVideo: true, ContentLivestream: true},
	SourceAdClick:        {ContentVideo: true, ContentLivestream: true},
	SourceSubscription:   {},
}

func AllowedContentKind(source Source, kind ContentKind) bool {
	allowed, ok := contentKindsBySource[source]
	if !ok {
		return false
	}
	return allowed[kind]
}

// Earning is one append-only ledger record. PlatformCut is snapshotted at
// write time so historical aggregation stays correct when rates change.
type Earning struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	CreatorID   string         `gorm:"column:creator_id;index" json:"creatorId"`
	Source      Source         `gorm:"column:source;index" json:"source"`
	ContentKind ContentKind    `gorm:"column:content_kind" json:"contentKind,omitempty"`
	ContentID   string         `gorm:"column:content_id;index" json:"contentId,omitempty"`
	Amount      float64        `gorm:"column:amount" json:"amount"`
	PlatformCut float64        `gorm:"column:platform_cut" json:"platformCut"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	OccurredAt  time.Time      `gorm:"column:occurred_at;index" json:"occurredAt"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (Earning) TableName() string {
	return "earnings"
}

// CreatorShare is the creator's portion of this record.
func (e Earning) CreatorShare() float64 {
	return e.Amount * (100 - e.PlatformCut) / 100
}

// PlatformShare is the platform's portion of this record.
func (e Earning) PlatformShare() float64 {
	return e.Amount * e.PlatformCut / 100
}

// SettingsID is the fixed primary key of the singleton settings row.
const SettingsID = "default"

const DefaultPlatformCut = 30

// MonetizationSettings is a single-row table keyed by SettingsID.
type MonetizationSettings struct {
	ID                      string    `gorm:"column:id;primaryKey" json:"-"`
	ViewEarningRate         float64   `gorm:"column:view_earning_rate" json:"viewEarningRate"`
	AdImpressionRate        float64   `gorm:"column:ad_impression_rate" json:"adImpressionRate"`
	AdClickRate             float64   `gorm:"column:ad_click_rate" json:"adClickRate"`
	SubscriptionSharingRate float64   `gorm:"column:subscription_sharing_rate" json:"subscriptionSharingRate"`
	MinimumPayoutAmount     float64   `gorm:"column:minimum_payout_amount" json:"minimumPayoutAmount"`
	JazzCashEnabled         bool      `gorm:"column:jazzcash_enabled" json:"jazzCashEnabled"`
	EasyPaisaEnabled        bool      `gorm:"column:easypaisa_enabled" json:"easyPaisaEnabled"`
	PayFastEnabled          bool      `gorm:"column:payfast_enabled" json:"payFastEnabled"`
	BankTransferEnabled     bool      `gorm:"column:bank_transfer_enabled" json:"bankTransferEnabled"`
	UpdatedBy               string    `gorm:"column:updated_by" json:"updatedBy,omitempty"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt               time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (MonetizationSettings) TableName() string {
	return "monetization_settings"
}

// DefaultSettings seeds the singleton on first access.
func DefaultSettings() MonetizationSettings {
	return MonetizationSettings{
		ID:                      SettingsID,
		ViewEarningRate:         0.005,
		AdImpressionRate:        0.01,
		AdClickRate:             0.05,
		SubscriptionSharingRate: 70,
		MinimumPayoutAmount:     1000,
		JazzCashEnabled:         true,
		EasyPaisaEnabled:        true,
		PayFastEnabled:          true,
		BankTransferEnabled:     true,
	}
}

// RateFor returns the per-event amount for a counted source. Subscription
// amounts come from the payment, not a rate.
func (m MonetizationSettings) RateFor(source Source) (float64, bool) {
	switch source {
	case SourceVideoView, SourceLivestreamView:
		return m.ViewEarningRate, true
	case SourceAdImpression:
		return m.AdImpressionRate, true
	case SourceAdClick:
		return m.AdClickRate, true
	default:
		return 0, false
	}
}

// GatewayEnabled reports whether a payout/payment method is switched on.
func (m MonetizationSettings) GatewayEnabled(method string) bool {
	switch method {
	case "jazzcash":
		return m.JazzCashEnabled
	case "easypaisa":
		return m.EasyPaisaEnabled
	case "payfast":
		return m.PayFastEnabled
	case "bank_transfer":
		return m.BankTransferEnabled
	default:
		return false
	}
}
