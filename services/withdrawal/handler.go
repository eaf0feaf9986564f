package withdrawal

import (
	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"
	"creatorpay/services/earning"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(engine *gin.Engine) {
	withdrawals := engine.Group("/api/withdrawals", middleware.RequireUser())

	withdrawals.POST("/request", middleware.RequireRole(middleware.RoleCreator), h.request)
	withdrawals.GET("/history", h.history)

	admin := withdrawals.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/all", h.adminList)
	admin.PUT("/process/:withdrawalId", h.process)
	admin.POST("/request", h.adminRequest)
	admin.GET("/platform-revenue", h.platformRevenue)
}

func (h *Handler) request(c *gin.Context) {
	var payload RequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	record, err := h.service.Request(c.Request.Context(), middleware.UserID(c), payload)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.Created(c, record)
}

func (h *Handler) history(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil || p.Limit <= 0 {
		p.Limit = 20
	}

	records, page, err := h.service.History(c.Request.Context(), middleware.UserID(c), p)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKList(c, records, page)
}

func (h *Handler) adminList(c *gin.Context) {
	var p pagination.Pagination
	if err := c.ShouldBindQuery(&p); err != nil || p.Limit <= 0 {
		p.Limit = 20
	}

	filter := AdminListFilter{
		Status: Status(c.Query("status")),
		Type:   Type(c.Query("type")),
		UserID: c.Query("userId"),
	}

	records, page, err := h.service.AdminList(c.Request.Context(), filter, p)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKList(c, records, page)
}

func (h *Handler) process(c *gin.Context) {
	var payload ProcessPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	record, err := h.service.Process(c.Request.Context(), middleware.UserID(c), c.Param("withdrawalId"), payload)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKMessage(c, "withdrawal processed", record)
}

func (h *Handler) adminRequest(c *gin.Context) {
	var payload AdminRequestPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	record, err := h.service.AdminRequest(c.Request.Context(), middleware.UserID(c), payload)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.Created(c, record)
}

func (h *Handler) platformRevenue(c *gin.Context) {
	window, err := earning.ResolveWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	report, err := h.service.PlatformRevenue(c.Request.Context(), window)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OK(c, report)
}
