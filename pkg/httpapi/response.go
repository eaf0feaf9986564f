package httpapi

import (
	"errors"
	"net/http"

	"creatorpay/pkg/db/pagination"
	"creatorpay/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func OKMessage(c *gin.Context, message string, data any) {
	c.JSON(http.StatusOK, Response{Success: true, Message: message, Data: data})
}

// OKList answers a cursor-paged listing.
func OKList(c *gin.Context, items any, page *pagination.PageInfo) {
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{
		"items":     items,
		"page_info": page,
	}})
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// Fail maps a domain error onto the envelope. Raw gateway payloads and
// internal error chains never reach the client; they stay in the logs.
func Fail(c *gin.Context, err error) {
	var be errutil.BaseError
	if errors.As(err, &be) {
		c.JSON(be.Code.HTTPStatus(), Response{
			Success: false,
			Message: be.Message,
			Error:   be.Details,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Message: "internal server error",
	})
}
