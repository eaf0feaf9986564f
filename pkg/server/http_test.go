package server

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"creatorpay/pkg/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
	gin.SetMode(gin.TestMode)
}

func newServer(t *testing.T, addr string) *Server {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Addr = addr
	return NewHttpServer(Params{Config: cfg, Handler: gin.New()})
}

func TestListenAddr(t *testing.T) {
	require.Equal(t, ":8080", listenAddr("8080"))
	require.Equal(t, ":8080", listenAddr(":8080"))
}

func TestRunFailsStartupOnBadAddress(t *testing.T) {
	srv := newServer(t, "not a port")

	lc := fxtest.NewLifecycle(t)
	Run(lc, srv)
	require.Error(t, lc.Start(context.Background()))
}

func TestRunServesOnConfiguredPort(t *testing.T) {
	srv := newServer(t, "0")

	lc := fxtest.NewLifecycle(t)
	Run(lc, srv)
	lc.RequireStart().RequireStop()
}
