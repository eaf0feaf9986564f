package payment

import (
	"errors"
	"net/http"
	"net/url"

	"creatorpay/pkg/config"
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"
	"creatorpay/services/gateway"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handler struct {
	service *Service
	cfg     *config.Config
}

func NewHandler(service *Service, cfg *config.Config) *Handler {
	return &Handler{service: service, cfg: cfg}
}

func (h *Handler) Register(engine *gin.Engine) {
	payments := engine.Group("/api/payments")

	authed := payments.Group("", middleware.RequireUser())
	authed.POST("/initialize", h.initiate)
	authed.GET("/details/:paymentId", h.details)
	authed.GET("/history", h.history)

	admin := payments.Group("/admin", middleware.RequireUser(), middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/all", h.adminList)

	// provider-called endpoints authenticate by signature/IP, not session
	payments.POST("/jazzcash/callback", h.redirectCallback(gateway.JazzCash))
	payments.POST("/easypaisa/callback", h.redirectCallback(gateway.EasyPaisa))
	payments.POST("/payfast/notify", h.payfastNotify)
	payments.GET("/payfast/return", h.payfastReturn)
	payments.GET("/payfast/cancel", h.payfastCancel)
}

func (h *Handler) initiate(c *gin.Context) {
	var req InitiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	resp, err := h.service.Initiate(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.Created(c, resp)
}

func (h *Handler) details(c *gin.Context) {
	record, err := h.service.GetDetails(c.Request.Context(), middleware.UserID(c), middleware.IsAdmin(c), c.Param("paymentId"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OK(c, record)
}

func (h *Handler) history(c *gin.Context) {
	records, page, err := h.service.History(c.Request.Context(), middleware.UserID(c), paginationFrom(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKList(c, records, page)
}

func (h *Handler) adminList(c *gin.Context) {
	filter := AdminListFilter{
		Status:  Status(c.Query("status")),
		Gateway: gateway.Provider(c.Query("gateway")),
		UserID:  c.Query("userId"),
	}

	records, page, err := h.service.AdminList(c.Request.Context(), filter, paginationFrom(c))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKList(c, records, page)
}

// redirectCallback serves the browser-redirect style callbacks: whatever
// happens, the user ends up on a result page, never a JSON error.
func (h *Handler) redirectCallback(provider gateway.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		outcome, err := h.service.HandleCallback(c.Request.Context(), provider, requestParams(c), c.ClientIP())
		if err != nil {
			h.redirectError(c, "Payment verification failed")
			return
		}

		if outcome.Successful {
			h.redirectResult(c, outcome.Payment.TransactionID, "success")
			return
		}
		h.redirectResult(c, outcome.Payment.TransactionID, "failed")
	}
}

// payfastNotify is PayFast's server-to-server ITN endpoint. The body is
// plain text per its protocol: OK stops retries, ERROR requests one.
func (h *Handler) payfastNotify(c *gin.Context) {
	if _, err := h.service.HandleCallback(c.Request.Context(), gateway.PayFast, requestParams(c), c.ClientIP()); err != nil {
		var be errutil.BaseError
		if errors.As(err, &be) && be.Code == errutil.StatusNotFound {
			c.String(http.StatusOK, "UNKNOWN")
			return
		}
		zap.L().Error("payfast notify failed", zap.Error(err))
		c.String(http.StatusOK, "ERROR")
		return
	}

	c.String(http.StatusOK, "OK")
}

func (h *Handler) payfastReturn(c *gin.Context) {
	txn := c.Query("m_payment_id")
	if txn == "" {
		h.redirectError(c, "Missing payment reference")
		return
	}

	record, err := h.service.payments.FindOne(c.Request.Context(), &Payment{TransactionID: txn})
	if err != nil || record == nil {
		h.redirectError(c, "Payment not found")
		return
	}

	// the authoritative outcome arrives on the notify endpoint; the return
	// leg only routes the user
	h.redirectResult(c, txn, string(record.Status))
}

func (h *Handler) payfastCancel(c *gin.Context) {
	txn := c.Query("m_payment_id")
	if txn == "" {
		h.redirectError(c, "Missing payment reference")
		return
	}

	outcome, err := h.service.CancelByUser(c.Request.Context(), txn)
	if err != nil {
		h.redirectError(c, "Payment not found")
		return
	}

	h.redirectResult(c, outcome.Payment.TransactionID, "cancelled")
}

func (h *Handler) redirectResult(c *gin.Context, transactionID, status string) {
	target := h.cfg.Payment.ReturnRedirectURL
	if target == "" {
		httpapi.OKMessage(c, status, gin.H{"transactionId": transactionID})
		return
	}

	q := url.Values{}
	q.Set("transactionId", transactionID)
	q.Set("status", status)
	c.Redirect(http.StatusFound, target+"?"+q.Encode())
}

func (h *Handler) redirectError(c *gin.Context, message string) {
	target := h.cfg.Payment.ErrorRedirectURL
	if target == "" {
		httpapi.Fail(c, errutil.BadRequest(message, nil))
		return
	}

	q := url.Values{}
	q.Set("message", message)
	c.Redirect(http.StatusFound, target+"?"+q.Encode())
}

// requestParams flattens form and query values into the map adapters verify.
func requestParams(c *gin.Context) map[string]string {
	params := make(map[string]string)

	if err := c.Request.ParseForm(); err == nil {
		for key, values := range c.Request.Form {
			if len(values) > 0 {
				params[key] = values[0]
			}
		}
	}

	return params
}

func paginationFrom(c *gin.Context) pagination.Pagination {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil || p.Limit <= 0 {
		p.Limit = 20
	}
	return p
}
