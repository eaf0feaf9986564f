package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creatorpay/pkg/config"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/task"
	"creatorpay/pkg/taskname"
	"creatorpay/services/earning"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	TaskProcessPurpose   = taskname.PaymentProcessPurpose
	TaskReconcilePending = taskname.PaymentReconcilePending
)

type ProcessPurposePayload struct {
	PaymentID string `json:"paymentId"`
}

// TaskHandler runs the post-payment work that should not block a gateway
// callback response.
type TaskHandler struct {
	service  *Service
	earnings *earning.Service
	cfg      *config.Config
}

func NewTaskHandler(service *Service, earnings *earning.Service, cfg *config.Config) *TaskHandler {
	return &TaskHandler{service: service, earnings: earnings, cfg: cfg}
}

func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskProcessPurpose, h.handleProcessPurpose)
	mux.HandleFunc(TaskReconcilePending, h.handleReconcilePending)
}

func (h *TaskHandler) handleProcessPurpose(ctx context.Context, t *asynq.Task) error {
	var payload ProcessPurposePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w: %w", err, asynq.SkipRetry)
	}

	record, err := h.service.payments.FindOne(ctx, &Payment{ID: payload.PaymentID})
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("payment %s not found: %w", payload.PaymentID, asynq.SkipRetry)
	}
	if record.Status != StatusCompleted {
		zap.L().Warn("skipping purpose processing for non-completed payment",
			zap.String("payment_id", record.ID),
			zap.String("status", string(record.Status)),
		)
		return nil
	}

	switch record.Purpose {
	case PurposeSubscription:
		// channel reference id is the creator's user id
		_, err := h.earnings.RecordSubscription(ctx, record.ReferenceID, record.Amount, record.ID)
		if err != nil {
			var be errutil.BaseError
			if errors.As(err, &be) && be.Code == errutil.StatusNotFound {
				return fmt.Errorf("creator missing for subscription payment %s: %w", record.ID, asynq.SkipRetry)
			}
			return err
		}
	case PurposeDonation, PurposePremium, PurposeAdCredit, PurposeOther:
		// crediting hooks for these purposes are still being defined by
		// product; completion alone is recorded
		zap.L().Info("completed payment requires no further crediting",
			zap.String("payment_id", record.ID),
			zap.String("purpose", string(record.Purpose)),
		)
	}

	return nil
}

func (h *TaskHandler) handleReconcilePending(ctx context.Context, t *asynq.Task) error {
	_, err := h.service.ExpireStalePending(ctx, h.cfg.Payment.PendingTTL)
	return err
}

// Reconciler periodically enqueues the stale-pending sweep.
type Reconciler struct {
	enqueuer task.Enqueuer
	interval time.Duration
}

func NewReconciler(enqueuer task.Enqueuer, cfg *config.Config) *Reconciler {
	return &Reconciler{enqueuer: enqueuer, interval: cfg.Payment.ReconcileInterval}
}

func StartReconciler(lc fx.Lifecycle, r *Reconciler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go r.run(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

func (r *Reconciler) run(ctx context.Context) {
	zap.L().Info("[Reconciler] started pending payment sweep", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := r.enqueuer.Enqueue(asynq.NewTask(TaskReconcilePending, nil, asynq.Queue("low"))); err != nil {
				zap.L().Error("[Reconciler] failed to enqueue sweep", zap.Error(err))
			}
		case <-ctx.Done():
			zap.L().Warn("[Reconciler] stopped")
			return
		}
	}
}
