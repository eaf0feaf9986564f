package withdrawal

import (
	"time"

	"gorm.io/datatypes"
)

// Status is the withdrawal lifecycle state.
type Status string

var (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
)

// transitions is the full state machine. completed and rejected are
// terminal.
var transitions = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCompleted: true, StatusRejected: true},
	StatusProcessing: {StatusCompleted: true, StatusRejected: true},
}

func (s Status) CanTransition(to Status) bool {
	return transitions[s][to]
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Type separates creator payouts (drawn from a user's pending balance) from
// admin payouts (drawn from aggregate platform revenue).
type Type string

var (
	TypeCreator Type = "creator"
	TypeAdmin   Type = "admin"
)

// Withdrawal is one payout request. Amount is the pending balance snapshot
// taken when the request was accepted; the balance itself is zeroed in the
// same transaction.
type Withdrawal struct {
	ID                   string         `gorm:"column:id;primaryKey" json:"id"`
	UserID               string         `gorm:"column:user_id;index" json:"userId"`
	Type                 Type           `gorm:"column:withdrawal_type" json:"withdrawalType"`
	Amount               float64        `gorm:"column:amount" json:"amount"`
	PaymentMethod        string         `gorm:"column:payment_method" json:"paymentMethod"`
	PaymentDetails       datatypes.JSON `gorm:"column:payment_details" json:"paymentDetails,omitempty"`
	Status               Status         `gorm:"column:status;index" json:"status"`
	RejectionReason      string         `gorm:"column:rejection_reason" json:"rejectionReason,omitempty"`
	ProcessedBy          string         `gorm:"column:processed_by" json:"processedBy,omitempty"`
	ProcessedAt          *time.Time     `gorm:"column:processed_at" json:"processedAt,omitempty"`
	TransactionReference string         `gorm:"column:transaction_reference;uniqueIndex" json:"transactionReference"`
	RequestedAt          time.Time      `gorm:"column:requested_at" json:"requestedAt"`
	CreatedAt            time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt            time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Withdrawal) TableName() string {
	return "withdrawals"
}
