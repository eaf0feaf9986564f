package payment

import (
	"context"
	"encoding/json"
	"time"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/repository"
	"creatorpay/pkg/task"
	"creatorpay/services/earning"
	"creatorpay/services/gateway"
	"creatorpay/services/user"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	registry *gateway.Registry
	settings *earning.Settings
	enqueuer task.Enqueuer

	payments repository.Repository[Payment]
	users    repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Registry *gateway.Registry
	Settings *earning.Settings
	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		registry: p.Registry,
		settings: p.Settings,
		enqueuer: p.Enqueuer,

		payments: repository.ProvideStore[Payment](p.DB),
		users:    repository.ProvideStore[user.User](p.DB),
	}
}

type InitiateRequest struct {
	Gateway       gateway.Provider `json:"gateway" binding:"required"`
	Amount        float64          `json:"amount" binding:"required"`
	Purpose       Purpose          `json:"purpose" binding:"required"`
	ReferenceKind ReferenceKind    `json:"referenceKind"`
	ReferenceID   string           `json:"referenceId"`
	Description   string           `json:"description"`
}

type InitiateResponse struct {
	PaymentID     string            `json:"paymentId"`
	TransactionID string            `json:"transactionId"`
	Gateway       gateway.Provider  `json:"gateway"`
	PaymentURL    string            `json:"paymentUrl"`
	FormData      map[string]string `json:"formData"`
}

// Initiate records a pending Payment and builds the signed gateway form.
// The Payment row exists before the adapter runs, so even an adapter
// failure leaves an auditable attempt for reconciliation to expire.
func (s *Service) Initiate(ctx context.Context, userID string, req InitiateRequest) (*InitiateResponse, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be greater than zero", nil)
	}
	if req.Gateway.String() == "" || req.Gateway == gateway.BankTransfer {
		return nil, errutil.BadRequest("unknown payment gateway", nil)
	}
	if !ValidReference(req.Purpose, req.ReferenceKind, req.ReferenceID) {
		return nil, errutil.ValidationFailed("invalid purpose/reference combination", nil)
	}

	adapter, ok := s.registry.For(req.Gateway)
	if !ok {
		return nil, errutil.BadRequest("unknown payment gateway", nil)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.GatewayEnabled(string(req.Gateway)) {
		return nil, errutil.UnprocessableEntity("payment gateway is disabled", nil)
	}

	payer, err := s.users.FindOne(ctx, &user.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, errutil.NotFound("user not found", nil)
	}

	record := &Payment{
		ID:            s.node.Generate().String(),
		UserID:        payer.ID,
		Amount:        req.Amount,
		Gateway:       req.Gateway,
		Purpose:       req.Purpose,
		ReferenceKind: req.ReferenceKind,
		ReferenceID:   req.ReferenceID,
		Status:        StatusPending,
		Description:   req.Description,
	}
	// placeholder until the adapter hands back its reference, keeps the
	// unique index satisfied
	record.TransactionID = record.ID

	if err := s.payments.Create(ctx, record); err != nil {
		return nil, err
	}

	form, err := adapter.CreatePaymentRequest(ctx, gateway.Request{
		TransactionID: record.ID,
		Amount:        req.Amount,
		Description:   req.Description,
		UserID:        payer.ID,
		Name:          payer.DisplayName,
		Email:         payer.Email,
		MobileNumber:  payer.Phone,
	})
	if err != nil {
		zap.L().Error("gateway adapter failed",
			zap.String("payment_id", record.ID),
			zap.String("gateway", string(req.Gateway)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := s.payments.Update(ctx, record.ID, map[string]any{
		"transaction_id": form.TransactionID,
	}); err != nil {
		return nil, err
	}

	zap.L().Info("payment initiated",
		zap.String("payment_id", record.ID),
		zap.String("transaction_id", form.TransactionID),
		zap.String("gateway", string(req.Gateway)),
		zap.Float64("amount", req.Amount),
	)

	return &InitiateResponse{
		PaymentID:     record.ID,
		TransactionID: form.TransactionID,
		Gateway:       req.Gateway,
		PaymentURL:    form.PaymentURL,
		FormData:      form.FormData,
	}, nil
}

// CallbackOutcome tells a handler how the notification was resolved.
type CallbackOutcome struct {
	Payment    *Payment
	Applied    bool
	Duplicate  bool
	Successful bool
}

// HandleCallback verifies a provider notification and applies it to the
// matching Payment. Repeated delivery of an already-applied callback is a
// no-op reported as Duplicate.
func (s *Service) HandleCallback(ctx context.Context, provider gateway.Provider, params map[string]string, clientIP string) (*CallbackOutcome, error) {
	adapter, ok := s.registry.For(provider)
	if !ok {
		return nil, errutil.BadRequest("unknown payment gateway", nil)
	}

	result, err := adapter.VerifyCallback(ctx, params, clientIP)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		zap.L().Warn("rejected unverified gateway callback",
			zap.String("gateway", string(provider)),
			zap.String("transaction_id", result.TransactionID),
		)
		return nil, errutil.Unauthorized("callback verification failed", nil)
	}

	record, err := s.payments.FindOne(ctx, &Payment{TransactionID: result.TransactionID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("payment not found for transaction", nil)
	}

	if result.Successful {
		return s.applyTransition(ctx, record, StatusCompleted, result, "")
	}

	message := result.ResponseMessage
	if message == "" {
		message = "payment declined by gateway"
	}
	return s.applyTransition(ctx, record, StatusFailed, result, message)
}

// CancelByUser marks a pending payment failed on an explicit user cancel.
// Trusted without verification: cancelling is not a privilege worth forging.
func (s *Service) CancelByUser(ctx context.Context, transactionID string) (*CallbackOutcome, error) {
	record, err := s.payments.FindOne(ctx, &Payment{TransactionID: transactionID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("payment not found for transaction", nil)
	}

	return s.applyTransition(ctx, record, StatusFailed, nil, "Payment cancelled by user")
}

// applyTransition moves a payment out of pending with a guarded UPDATE. A
// zero row count means another delivery won; re-reading decides whether
// that is a duplicate of the same outcome or a conflict worth logging.
func (s *Service) applyTransition(ctx context.Context, record *Payment, to Status, result *gateway.CallbackResult, errorMessage string) (*CallbackOutcome, error) {
	if !StatusPending.CanTransition(to) {
		return nil, errutil.Internal("illegal payment transition", nil)
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now(),
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}
	if result != nil {
		raw, err := json.Marshal(result.Raw)
		if err == nil {
			updates["gateway_response"] = datatypes.JSON(raw)
		}
	}

	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", record.ID, StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	current, err := s.payments.FindOne(ctx, &Payment{ID: record.ID})
	if err != nil {
		return nil, err
	}

	outcome := &CallbackOutcome{
		Payment:    current,
		Applied:    res.RowsAffected > 0,
		Successful: current.Status == StatusCompleted,
	}

	if res.RowsAffected == 0 {
		outcome.Duplicate = current.Status == to
		if !outcome.Duplicate {
			zap.L().Warn("callback outcome conflicts with stored status",
				zap.String("payment_id", record.ID),
				zap.String("stored", string(current.Status)),
				zap.String("incoming", string(to)),
			)
		}
		return outcome, nil
	}

	zap.L().Info("payment transitioned",
		zap.String("payment_id", record.ID),
		zap.String("status", string(to)),
	)

	if to == StatusCompleted {
		s.enqueuePurpose(current)
	}

	return outcome, nil
}

func (s *Service) enqueuePurpose(record *Payment) {
	if s.enqueuer == nil {
		return
	}

	payload, err := json.Marshal(ProcessPurposePayload{PaymentID: record.ID})
	if err != nil {
		return
	}
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(TaskProcessPurpose, payload)); err != nil {
		zap.L().Error("failed to enqueue purpose processing",
			zap.String("payment_id", record.ID),
			zap.Error(err),
		)
	}
}

// GetDetails returns a payment to its owner or an admin.
func (s *Service) GetDetails(ctx context.Context, requesterID string, isAdmin bool, paymentID string) (*Payment, error) {
	record, err := s.payments.FindOne(ctx, &Payment{ID: paymentID})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, errutil.NotFound("payment not found", nil)
	}
	if !isAdmin && record.UserID != requesterID {
		return nil, errutil.Forbidden("not allowed to view this payment", nil)
	}
	return record, nil
}

func (s *Service) History(ctx context.Context, userID string, p pagination.Pagination) ([]*Payment, *pagination.PageInfo, error) {
	records, err := s.payments.Find(ctx, &Payment{UserID: userID},
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, nil, err
	}

	records, info := pagination.TrimPage(records, p.Limit, func(r *Payment) string { return r.ID })
	return records, info, nil
}

type AdminListFilter struct {
	Status  Status
	Gateway gateway.Provider
	UserID  string
}

func (s *Service) AdminList(ctx context.Context, filter AdminListFilter, p pagination.Pagination) ([]*Payment, *pagination.PageInfo, error) {
	query := &Payment{
		Status:  filter.Status,
		Gateway: filter.Gateway,
		UserID:  filter.UserID,
	}
	records, err := s.payments.Find(ctx, query,
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, nil, err
	}

	records, info := pagination.TrimPage(records, p.Limit, func(r *Payment) string { return r.ID })
	return records, info, nil
}

// ExpireStalePending fails payments stuck pending past the TTL. The gateway
// never answered; leaving them pending forever hides the loss.
func (s *Service) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)

	res := s.db.WithContext(ctx).Model(&Payment{}).
		Where("status = ? AND created_at < ?", StatusPending, cutoff).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": "expired awaiting gateway callback",
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected > 0 {
		zap.L().Info("expired stale pending payments", zap.Int64("count", res.RowsAffected))
	}
	return res.RowsAffected, nil
}
