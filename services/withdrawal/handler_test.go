package withdrawal

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"creatorpay/pkg/middleware"
)

func serveRequest(t *testing.T, role string, body string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	service, _ := newTestService(t)
	engine := gin.New()
	NewHandler(service).Register(engine)

	req := httptest.NewRequest(http.MethodPost, "/api/withdrawals/request", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.HeaderUserID, "u-1")
	req.Header.Set(middleware.HeaderUserRole, role)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequestRouteRequiresCreatorRole(t *testing.T) {
	w := serveRequest(t, "user", `{}`)
	require.Equal(t, http.StatusForbidden, w.Code)

	// creators pass the role gate and reach body validation
	w = serveRequest(t, middleware.RoleCreator, `not json`)
	require.NotEqual(t, http.StatusForbidden, w.Code)

	// admins may act on a creator's behalf
	w = serveRequest(t, middleware.RoleAdmin, `not json`)
	require.NotEqual(t, http.StatusForbidden, w.Code)
}
