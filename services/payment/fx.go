package payment

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(registerRoutes),
)

// Worker wires the asynq handlers and the reconciliation loop. Kept apart
// from Module so tests and single-purpose deployments can skip it.
var Worker = fx.Module("payment.worker",
	fx.Provide(NewTaskHandler),
	fx.Provide(NewReconciler),
	fx.Invoke(registerTasks),
	fx.Invoke(StartReconciler),
)

func registerRoutes(engine *gin.Engine, handler *Handler) {
	handler.Register(engine)
}

func registerTasks(mux *asynq.ServeMux, handler *TaskHandler) {
	handler.Register(mux)
}
