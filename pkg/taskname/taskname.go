package taskname

const (
	// Payment tasks
	PaymentProcessPurpose   = "payment:process_purpose"
	PaymentReconcilePending = "payment:reconcile_pending"
)
