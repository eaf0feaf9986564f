package user

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type MonetizationStatus string

var (
	NotApplied MonetizationStatus = "not_applied"
	Pending    MonetizationStatus = "pending"
	Approved   MonetizationStatus = "approved"
	Rejected   MonetizationStatus = "rejected"
)

func (s MonetizationStatus) String() string {
	switch s {
	case NotApplied, Pending, Approved, Rejected:
		return string(s)
	default:
		return ""
	}
}

// User is the creator-account subset this service owns: channel statistics
// used by the eligibility check and the monetary balances mutated by earnings
// and withdrawals. Profile, auth and channel content live elsewhere.
type User struct {
	ID          string    `gorm:"column:id;primaryKey"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
	DisplayName string    `gorm:"column:display_name"`
	Email       string    `gorm:"column:email"`
	Phone       string    `gorm:"column:phone"`

	SubscriberCount       int64 `gorm:"column:subscriber_count;not null;default:0"`
	TotalWatchTimeMinutes int64 `gorm:"column:total_watch_time_minutes;not null;default:0"`
	TotalShortViews       int64 `gorm:"column:total_short_views;not null;default:0"`

	IsMonetized        bool               `gorm:"column:is_monetized;not null;default:false"`
	MonetizationStatus MonetizationStatus `gorm:"column:monetization_status;type:varchar(20);default:'not_applied'"`

	TotalEarnings    float64    `gorm:"column:total_earnings;not null;default:0"`
	PendingPayout    float64    `gorm:"column:pending_payout;not null;default:0"`
	LastPayoutDate   *time.Time `gorm:"column:last_payout_date"`
	LastPayoutAmount float64    `gorm:"column:last_payout_amount;not null;default:0"`

	PaymentMethods datatypes.JSON `gorm:"column:payment_methods"`
}

// PaymentMethodDetails is the stored per-gateway payout destination.
type PaymentMethodDetails struct {
	JazzCash  *MobileAccount `json:"jazzCash,omitempty"`
	EasyPaisa *MobileAccount `json:"easyPaisa,omitempty"`
	PayFast   *MobileAccount `json:"payFast,omitempty"`
	Bank      *BankAccount   `json:"bankDetails,omitempty"`
}

type MobileAccount struct {
	AccountTitle string `json:"accountTitle"`
	MobileNumber string `json:"mobileNumber"`
}

type BankAccount struct {
	AccountTitle  string `json:"accountTitle"`
	AccountNumber string `json:"accountNumber"`
	BankName      string `json:"bankName"`
	IBAN          string `json:"iban,omitempty"`
}

// MethodDetails decodes the stored payment methods blob. A missing or empty
// blob decodes to the zero value, never an error.
func (u *User) MethodDetails() (PaymentMethodDetails, error) {
	var out PaymentMethodDetails
	if len(u.PaymentMethods) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(u.PaymentMethods, &out); err != nil {
		return out, err
	}
	return out, nil
}

// HasMethod reports whether payout details exist for the given method.
func (d PaymentMethodDetails) HasMethod(method string) bool {
	switch method {
	case "jazzcash":
		return d.JazzCash != nil && d.JazzCash.MobileNumber != ""
	case "easypaisa":
		return d.EasyPaisa != nil && d.EasyPaisa.MobileNumber != ""
	case "payfast":
		return d.PayFast != nil && d.PayFast.MobileNumber != ""
	case "bank_transfer":
		return d.Bank != nil && d.Bank.AccountNumber != ""
	default:
		return false
	}
}
