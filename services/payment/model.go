package payment

import (
	"time"

	"creatorpay/services/gateway"

	"gorm.io/datatypes"
)

// Status is the payment lifecycle state.
type Status string

var (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// transitions is the full state machine. Anything not listed is illegal,
// including every transition out of failed and refunded.
var transitions = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusFailed: true},
	StatusCompleted: {StatusRefunded: true},
}

func (s Status) CanTransition(to Status) bool {
	return transitions[s][to]
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Purpose is what the payment buys.
type Purpose string

var (
	PurposeSubscription Purpose = "subscription"
	PurposeDonation     Purpose = "donation"
	PurposePremium      Purpose = "premium"
	PurposeAdCredit     Purpose = "ad_credit"
	PurposeOther        Purpose = "other"
)

// ReferenceKind tags which entity a payment's reference points at.
type ReferenceKind string

var (
	RefChannel    ReferenceKind = "channel"
	RefVideo      ReferenceKind = "video"
	RefLivestream ReferenceKind = "livestream"
	RefCourse     ReferenceKind = "course"
	RefNone       ReferenceKind = ""
)

// referenceKindsByPurpose validates the reference union per purpose.
// Premium and ad credit attach to the paying account itself.
var referenceKindsByPurpose = map[Purpose]map[ReferenceKind]bool{
	PurposeSubscription: {RefChannel: true},
	PurposeDonation:     {RefChannel: true, RefVideo: true, RefLivestream: true},
	PurposePremium:      {RefNone: true},
	PurposeAdCredit:     {RefNone: true},
	PurposeOther:        {RefNone: true, RefChannel: true, RefVideo: true, RefLivestream: true, RefCourse: true},
}

func ValidReference(purpose Purpose, kind ReferenceKind, id string) bool {
	allowed, ok := referenceKindsByPurpose[purpose]
	if !ok {
		return false
	}
	if !allowed[kind] {
		return false
	}
	// a typed reference must carry an id, an untyped one must not
	if kind == RefNone {
		return id == ""
	}
	return id != ""
}

// Payment is one attempt against a gateway. TransactionID is generated
// locally before the gateway sees the request and is the only correlation
// key callbacks carry.
type Payment struct {
	ID              string           `gorm:"column:id;primaryKey" json:"id"`
	UserID          string           `gorm:"column:user_id;index" json:"userId"`
	Amount          float64          `gorm:"column:amount" json:"amount"`
	Gateway         gateway.Provider `gorm:"column:gateway" json:"gateway"`
	Purpose         Purpose          `gorm:"column:purpose" json:"purpose"`
	ReferenceKind   ReferenceKind    `gorm:"column:reference_kind" json:"referenceKind,omitempty"`
	ReferenceID     string           `gorm:"column:reference_id" json:"referenceId,omitempty"`
	Status          Status           `gorm:"column:status;index" json:"status"`
	TransactionID   string           `gorm:"column:transaction_id;uniqueIndex" json:"transactionId"`
	Description     string           `gorm:"column:description" json:"description,omitempty"`
	GatewayResponse datatypes.JSON   `gorm:"column:gateway_response" json:"-"`
	ErrorMessage    string           `gorm:"column:error_message" json:"errorMessage,omitempty"`
	CreatedAt       time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt       time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Payment) TableName() string {
	return "payments"
}
