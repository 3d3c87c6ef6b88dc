// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"ql-service/internal/config"
	"ql-service/internal/database"
	"ql-service/internal/handler"
	"ql-service/internal/middleware"
	"ql-service/internal/service"
	"ql-service/internal/utils"
)

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               *database.DB
	printService     *service.PrintService
	discoveryService *service.DiscoveryService
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db may be nil.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	printService *service.PrintService,
	discoveryService *service.DiscoveryService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		printService:     printService,
		discoveryService: discoveryService,
		wsHandler:        wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else if r.config.IsDebugEnabled() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.TestMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = r.config.Server.MaxUploadMB << 20

	r.addMiddleware(router)
	r.addRoutes(router)

	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())

	serviceLogger := utils.NewServiceLogger(r.logger, "http-server")
	router.Use(middleware.LoggingMiddleware(serviceLogger))

	router.Use(middleware.CORSMiddleware(&r.config.Security))

	r.logger.Info("Middleware configured")
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	healthHandler := handler.NewHealthHandler(r.db, r.printService, r.config, r.logger)
	printerHandler := handler.NewPrinterHandler(r.printService, r.config.Server.MaxUploadMB, r.config.Printer.Threshold, r.logger)
	jobHandler := handler.NewJobHandler(r.printService, r.logger)
	discoveryHandler := handler.NewDiscoveryHandler(r.discoveryService, r.logger)

	r.addHealthRoutes(router, healthHandler)

	apiV1 := router.Group("/api/v1")
	r.addPrinterRoutes(apiV1, printerHandler)
	r.addJobRoutes(apiV1, jobHandler)
	r.addDiscoveryRoutes(apiV1, discoveryHandler)

	if r.wsHandler != nil {
		r.addWebSocketRoutes(router, r.wsHandler)
	}

	r.addDocumentationRoutes(router)

	r.logger.Info("All routes configured successfully")
}

// addHealthRoutes sets up health check routes
func (r *Router) addHealthRoutes(router *gin.Engine, handler *handler.HealthHandler) {
	health := router.Group("")
	{
		health.GET("/health", handler.HealthCheck)
		health.GET("/ready", handler.ReadinessCheck)
		health.GET("/live", handler.LivenessCheck)
	}
}

// addPrinterRoutes sets up status and print routes
func (r *Router) addPrinterRoutes(api *gin.RouterGroup, handler *handler.PrinterHandler) {
	printer := api.Group("/printer")
	{
		printer.GET("/status", handler.GetStatus)
		printer.POST("/print", handler.Print)
	}
}

// addJobRoutes sets up job history routes
func (r *Router) addJobRoutes(api *gin.RouterGroup, handler *handler.JobHandler) {
	jobs := api.Group("/jobs")
	{
		jobs.GET("", handler.ListJobs)
		jobs.GET("/:id", handler.GetJob)
	}
}

// addDiscoveryRoutes sets up printer discovery routes
func (r *Router) addDiscoveryRoutes(api *gin.RouterGroup, handler *handler.DiscoveryHandler) {
	discovery := api.Group("/discovery")
	{
		discovery.GET("/scan", handler.ScanDevices)
		discovery.GET("/scanners", handler.GetScanners)
	}
}

// addWebSocketRoutes sets up WebSocket routes
func (r *Router) addWebSocketRoutes(router *gin.Engine, handler *handler.WebSocketHandler) {
	ws := router.Group("/ws")
	{
		ws.GET("/device", handler.HandleDeviceConnection)
		ws.GET("/events", handler.HandleEventConnection)
		ws.GET("/stats", handler.GetConnectionStats)
	}
}

// addDocumentationRoutes sets up documentation routes
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler))

	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
