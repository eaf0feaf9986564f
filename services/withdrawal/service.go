package withdrawal

import (
	"context"
	"encoding/json"
	"time"

	"creatorpay/pkg/db/option"
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/repository"
	"creatorpay/pkg/sequence"
	"creatorpay/services/earning"
	"creatorpay/services/user"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	node     *snowflake.Node
	refs     sequence.Generator
	settings *earning.Settings
	earnings *earning.Service
	balances *user.Balances

	withdrawals repository.Repository[Withdrawal]
	users       repository.Repository[user.User]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Refs     sequence.Generator
	Settings *earning.Settings
	Earnings *earning.Service
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		node:     p.Node,
		refs:     p.Refs,
		settings: p.Settings,
		earnings: p.Earnings,
		balances: user.NewBalances(p.DB),

		withdrawals: repository.ProvideStore[Withdrawal](p.DB),
		users:       repository.ProvideStore[user.User](p.DB),
	}
}

type RequestPayload struct {
	PaymentMethod string `json:"paymentMethod" binding:"required"`
}

// Request creates a creator payout for the full pending balance. The
// balance is claimed with a conditional zeroing UPDATE: if another request
// got there first, zero rows match and this one is rejected instead of
// paying the same money twice.
func (s *Service) Request(ctx context.Context, userID string, payload RequestPayload) (*Withdrawal, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	creator, err := s.users.FindOne(ctx, &user.User{ID: userID})
	if err != nil {
		return nil, err
	}
	if creator == nil {
		return nil, errutil.NotFound("user not found", nil)
	}
	if !creator.IsMonetized {
		return nil, errutil.Forbidden("account is not monetized", nil)
	}

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	if !settings.GatewayEnabled(payload.PaymentMethod) {
		return nil, errutil.BadRequest("payment method is not available", nil)
	}

	details, err := creator.MethodDetails()
	if err != nil {
		return nil, errutil.Internal("stored payment methods are corrupt", err)
	}
	if !details.HasMethod(payload.PaymentMethod) {
		return nil, errutil.ValidationFailed("no stored details for this payment method", nil)
	}

	snapshot := creator.PendingPayout
	if snapshot < settings.MinimumPayoutAmount {
		return nil, errutil.UnprocessableEntity("pending payout is below the minimum payout amount", nil)
	}

	reference, err := s.refs.NextWithdrawalRef(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate withdrawal reference", err)
	}

	record := &Withdrawal{
		ID:                   s.node.Generate().String(),
		UserID:               creator.ID,
		Type:                 TypeCreator,
		Amount:               snapshot,
		PaymentMethod:        payload.PaymentMethod,
		PaymentDetails:       methodSnapshot(details, payload.PaymentMethod),
		Status:               StatusPending,
		TransactionReference: reference,
		RequestedAt:          time.Now(),
	}

	if err := s.db.Transaction(func(tx *gorm.DB) error {
		claimed, err := s.balances.WithTrx(tx).ClaimPendingPayout(ctx, creator.ID, snapshot)
		if err != nil {
			return err
		}
		if !claimed {
			return errutil.Conflict("pending payout changed, retry the request", nil)
		}
		return s.withdrawals.WithTrx(tx).Create(ctx, record)
	}); err != nil {
		return nil, err
	}

	zap.L().Info("withdrawal requested",
		zap.String("withdrawal_id", record.ID),
		zap.String("user_id", creator.ID),
		zap.Float64("amount", snapshot),
		zap.String("method", payload.PaymentMethod),
	)

	return record, nil
}

type AdminRequestPayload struct {
	Amount        float64 `json:"amount" binding:"required"`
	PaymentMethod string  `json:"paymentMethod" binding:"required"`
}

// AdminRequest draws against aggregate platform revenue rather than a user
// balance.
func (s *Service) AdminRequest(ctx context.Context, adminID string, payload AdminRequestPayload) (*Withdrawal, error) {
	if payload.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be greater than zero", nil)
	}

	available, err := s.AvailablePlatformRevenue(ctx)
	if err != nil {
		return nil, err
	}
	if payload.Amount > available {
		return nil, errutil.UnprocessableEntity("amount exceeds available platform revenue", nil)
	}

	reference, err := s.refs.NextWithdrawalRef(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to generate withdrawal reference", err)
	}

	record := &Withdrawal{
		ID:                   s.node.Generate().String(),
		UserID:               adminID,
		Type:                 TypeAdmin,
		Amount:               payload.Amount,
		PaymentMethod:        payload.PaymentMethod,
		Status:               StatusPending,
		TransactionReference: reference,
		RequestedAt:          time.Now(),
	}
	if err := s.withdrawals.Create(ctx, record); err != nil {
		return nil, err
	}

	zap.L().Info("admin withdrawal requested",
		zap.String("withdrawal_id", record.ID),
		zap.Float64("amount", payload.Amount),
	)

	return record, nil
}

type ProcessPayload struct {
	Status               Status `json:"status" binding:"required"`
	RejectionReason      string `json:"rejectionReason"`
	TransactionReference string `json:"transactionReference"`
}

// Process applies an admin decision. Rejection of a creator withdrawal puts
// the claimed amount back on the user; admin withdrawals never touch a user
// balance.
func (s *Service) Process(ctx context.Context, adminID, withdrawalID string, payload ProcessPayload) (*Withdrawal, error) {
	to := payload.Status
	if to != StatusProcessing && to != StatusCompleted && to != StatusRejected {
		return nil, errutil.ValidationFailed("status must be processing, completed or rejected", nil)
	}
	if to == StatusRejected && payload.RejectionReason == "" {
		return nil, errutil.ValidationFailed("rejectionReason is required", nil)
	}

	var record *Withdrawal
	if err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = s.withdrawals.WithTrx(tx).FindOne(ctx,
			&Withdrawal{ID: withdrawalID},
			option.WithLockingUpdate(),
		)
		if err != nil {
			return err
		}
		if record == nil {
			return errutil.NotFound("withdrawal not found", nil)
		}
		if !record.Status.CanTransition(to) {
			return errutil.BadRequest("withdrawal is already finalized", nil)
		}

		now := time.Now()
		updates := map[string]any{
			"status":       to,
			"processed_by": adminID,
			"updated_at":   now,
		}
		if to == StatusCompleted || to == StatusRejected {
			updates["processed_at"] = now
		}
		if to == StatusRejected {
			updates["rejection_reason"] = payload.RejectionReason
		}

		// guard on the observed status so two admins cannot both finalize
		res := tx.WithContext(ctx).Model(&Withdrawal{}).
			Where("id = ? AND status = ?", record.ID, record.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.Conflict("withdrawal was processed concurrently", nil)
		}

		balances := s.balances.WithTrx(tx)
		if to == StatusRejected && record.Type == TypeCreator {
			return balances.RestorePendingPayout(ctx, record.UserID, record.Amount)
		}
		if to == StatusCompleted && record.Type == TypeCreator {
			return balances.RecordPayout(ctx, record.UserID, record.Amount, now)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	zap.L().Info("withdrawal processed",
		zap.String("withdrawal_id", record.ID),
		zap.String("status", string(to)),
		zap.String("processed_by", adminID),
	)

	return s.withdrawals.FindOne(ctx, &Withdrawal{ID: record.ID})
}

func (s *Service) History(ctx context.Context, userID string, p pagination.Pagination) ([]*Withdrawal, *pagination.PageInfo, error) {
	records, err := s.withdrawals.Find(ctx, &Withdrawal{UserID: userID},
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, nil, err
	}

	records, info := pagination.TrimPage(records, p.Limit, func(r *Withdrawal) string { return r.ID })
	return records, info, nil
}

type AdminListFilter struct {
	Status Status
	Type   Type
	UserID string
}

func (s *Service) AdminList(ctx context.Context, filter AdminListFilter, p pagination.Pagination) ([]*Withdrawal, *pagination.PageInfo, error) {
	query := &Withdrawal{
		Status: filter.Status,
		Type:   filter.Type,
		UserID: filter.UserID,
	}
	records, err := s.withdrawals.Find(ctx, query,
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, nil, err
	}

	records, info := pagination.TrimPage(records, p.Limit, func(r *Withdrawal) string { return r.ID })
	return records, info, nil
}

// PlatformRevenueReport is the admin view of what the platform earned and
// what remains drawable.
type PlatformRevenueReport struct {
	Window          earning.Window `json:"window"`
	PlatformRevenue float64        `json:"platformRevenue"`
	AdminWithdrawn  float64        `json:"adminWithdrawn"`
	Available       float64        `json:"available"`
}

func (s *Service) PlatformRevenue(ctx context.Context, window earning.Window) (*PlatformRevenueReport, error) {
	revenue, err := s.earnings.PlatformRevenue(ctx, window)
	if err != nil {
		return nil, err
	}

	withdrawn, err := s.completedAdminTotal(ctx)
	if err != nil {
		return nil, err
	}

	return &PlatformRevenueReport{
		Window:          window,
		PlatformRevenue: revenue,
		AdminWithdrawn:  withdrawn,
		Available:       revenue - withdrawn,
	}, nil
}

// AvailablePlatformRevenue bounds admin payouts: all-time platform share
// minus already completed admin withdrawals.
func (s *Service) AvailablePlatformRevenue(ctx context.Context) (float64, error) {
	window := earning.Window{Start: time.Time{}, End: time.Now().Add(time.Minute)}
	revenue, err := s.earnings.PlatformRevenue(ctx, window)
	if err != nil {
		return 0, err
	}

	withdrawn, err := s.completedAdminTotal(ctx)
	if err != nil {
		return 0, err
	}
	return revenue - withdrawn, nil
}

func (s *Service) completedAdminTotal(ctx context.Context) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).Model(&Withdrawal{}).
		Where("withdrawal_type = ? AND status = ?", TypeAdmin, StatusCompleted).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// methodSnapshot freezes the destination details the payout will be sent
// to, so later edits to the profile cannot redirect an approved withdrawal.
func methodSnapshot(details user.PaymentMethodDetails, method string) datatypes.JSON {
	subset := map[string]any{}
	switch method {
	case "jazzcash":
		subset["jazzCash"] = details.JazzCash
	case "easypaisa":
		subset["easyPaisa"] = details.EasyPaisa
	case "payfast":
		subset["payFast"] = details.PayFast
	case "bank_transfer":
		subset["bankDetails"] = details.Bank
	}

	raw, err := json.Marshal(subset)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
