package earning

import (
	"creatorpay/pkg/errutil"
	"creatorpay/pkg/httpapi"
	"creatorpay/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service  *Service
	settings *Settings
}

func NewHandler(service *Service, settings *Settings) *Handler {
	return &Handler{service: service, settings: settings}
}

func (h *Handler) Register(engine *gin.Engine) {
	earnings := engine.Group("/api/earnings")

	// Ingest endpoints are called by internal background jobs, not end
	// users, so they carry no identity.
	earnings.POST("/record-video-view", h.record(SourceVideoView, ContentVideo))
	earnings.POST("/record-livestream-view", h.record(SourceLivestreamView, ContentLivestream))
	earnings.POST("/record-ad-impression", h.record(SourceAdImpression, ""))
	earnings.POST("/record-ad-click", h.record(SourceAdClick, ""))

	creator := earnings.Group("/creator", middleware.RequireUser())
	creator.GET("/summary", h.creatorSummary)

	admin := earnings.Group("/admin", middleware.RequireUser(), middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/summary", h.adminSummary)
	admin.PUT("/settings", h.updateSettings)
	admin.GET("/settings", h.getSettings)
}

// record binds the ingest payload and defaults the content kind where the
// source implies it.
func (h *Handler) record(source Source, defaultKind ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RecordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
			return
		}
		if req.ContentKind == "" {
			req.ContentKind = defaultKind
		}

		entry, err := h.service.RecordEvent(c.Request.Context(), source, req)
		if err != nil {
			httpapi.Fail(c, err)
			return
		}

		httpapi.Created(c, entry)
	}
}

func (h *Handler) creatorSummary(c *gin.Context) {
	window, err := ResolveWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	creatorID := c.Query("creatorId")
	if creatorID == "" || !middleware.IsAdmin(c) {
		creatorID = middleware.UserID(c)
	}

	summary, err := h.service.ForCreator(c.Request.Context(), creatorID, window)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OK(c, summary)
}

func (h *Handler) adminSummary(c *gin.Context) {
	window, err := ResolveWindow(c.Query("start"), c.Query("end"))
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	summary, err := h.service.AdminSummary(c.Request.Context(), window)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OK(c, summary)
}

func (h *Handler) getSettings(c *gin.Context) {
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OK(c, settings)
}

func (h *Handler) updateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpapi.Fail(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	settings, err := h.settings.Update(c.Request.Context(), middleware.UserID(c), req)
	if err != nil {
		httpapi.Fail(c, err)
		return
	}

	httpapi.OKMessage(c, "monetization settings updated", settings)
}
