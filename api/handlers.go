package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gcbaptista/go-autocomplete/config"
	"github.com/gcbaptista/go-autocomplete/internal/logger"
	"github.com/gcbaptista/go-autocomplete/services"
)

// API holds dependencies for API handlers, primarily the autocomplete core.
type API struct {
	engine   services.Autocompleter
	settings config.Settings
	logger   *slog.Logger
}

// NewAPI creates a new API handler structure.
func NewAPI(engine services.Autocompleter, settings config.Settings, l *slog.Logger) *API {
	settings.ApplyDefaults()
	return &API{
		engine:   engine,
		settings: settings,
		logger:   logger.OrDiscard(l),
	}
}

// NewRouter builds a gin engine with the standard middleware chain and all routes.
func NewRouter(engine services.Autocompleter, settings config.Settings, l *slog.Logger) *gin.Engine {
	apiHandler := NewAPI(engine, settings, l)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(RequestLoggerMiddleware(apiHandler.logger))
	router.Use(CORSMiddleware())
	router.Use(RequestSizeLimitMiddleware(apiHandler.settings.Server.MaxRequestBytes))

	apiHandler.Register(router)
	return router
}

// SetupRoutes defines all the API routes for the autocomplete service.
func SetupRoutes(router *gin.Engine, engine services.Autocompleter, settings config.Settings, l *slog.Logger) {
	NewAPI(engine, settings, l).Register(router)
}

// Register attaches the handlers to router.
func (api *API) Register(router *gin.Engine) {
	// Health and introspection routes
	router.GET("/health", api.HealthCheckHandler)
	router.GET("/stats", api.StatsHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Autocomplete routes
	router.GET("/autocomplete", api.SuggestHandler)
	router.POST("/autocomplete", api.SubmitHandler)

	// Job management routes
	jobRoutes := router.Group("/jobs")
	{
		jobRoutes.GET("", api.ListJobsHandler)              // List jobs, optionally by status
		jobRoutes.GET("/:jobId", api.GetJobHandler)         // Get job status by ID
		jobRoutes.GET("/metrics", api.GetJobMetricsHandler) // Get job performance metrics
	}

	// Synchronisation routes
	router.POST("/sync/reconcile", api.TriggerReconcileHandler)
}

// HealthCheckHandler provides a simple health check endpoint.
// A replica that has not loaded its index yet reports 503.
func (api *API) HealthCheckHandler(c *gin.Context) {
	stats := api.engine.Stats()

	status, code := "healthy", http.StatusOK
	if !stats.Bootstrapped {
		status, code = "starting", http.StatusServiceUnavailable
	} else if stats.SubscriptionState != "active" {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":             status,
		"service":            "go-autocomplete",
		"subscription_state": stats.SubscriptionState,
		"timestamp":          fmt.Sprintf("%d", time.Now().Unix()),
	})
}

// StatsHandler reports the replica's index size and synchronisation state
func (api *API) StatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, api.engine.Stats())
}
