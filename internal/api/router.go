package api

import (
	"github.com/gin-gonic/gin"
	"github.com/siemhub/orchestrator/internal/api/handler"
	"github.com/siemhub/orchestrator/internal/api/middleware"
	"github.com/siemhub/orchestrator/internal/logger"
)

// Handlers bundles the handler set wired into the router.
type Handlers struct {
	Health      *handler.HealthHandler
	Task        *handler.TaskHandler
	TaskRun     *handler.TaskRunHandler
	Integration *handler.IntegrationHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(h Handlers, log *logger.Logger, mode string, cors middleware.CORSConfig) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cors))

	// Health check
	r.GET("/health", h.Health.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Tasks
		v1.GET("/tasks", h.Task.ListTasks)
		v1.POST("/tasks", h.Task.CreateTask)
		v1.GET("/tasks/:id", h.Task.GetTask)
		v1.PUT("/tasks/:id", h.Task.UpdateTask)
		v1.DELETE("/tasks/:id", h.Task.DeleteTask)
		v1.POST("/tasks/:id/run", h.Task.RunTask)

		// Run history and audit trail
		v1.GET("/task_runs", h.TaskRun.ListTaskRuns)
		v1.GET("/task_runs/:id", h.TaskRun.GetTaskRun)
		v1.GET("/task_request_logs", h.TaskRun.ListTaskRequestLogs)

		// Integrations and schema tooling
		v1.GET("/integrations", h.Integration.ListIntegrations)
		v1.POST("/integrations", h.Integration.CreateIntegration)
		v1.GET("/integrations/:id", h.Integration.GetIntegration)
		v1.PUT("/integrations/:id", h.Integration.UpdateIntegration)
		v1.DELETE("/integrations/:id", h.Integration.DeleteIntegration)
		v1.POST("/integrations/:id/test", h.Integration.TestIntegration)
		v1.POST("/integrations/preview_es_mapping", h.Integration.PreviewESMapping)
		v1.POST("/integrations/create_table_from_es", h.Integration.CreateTableFromES)
		v1.POST("/integrations/db_tables", h.Integration.DBTables)
		v1.POST("/integrations/preview_es_index", h.Integration.PreviewESIndex)
	}

	return r
}
