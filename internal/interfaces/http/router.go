// Package http assembles the console's HTTP API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/warehouse-ops/ntconsole/docs"
	"github.com/warehouse-ops/ntconsole/internal/infrastructure/metrics"
	tickethandlers "github.com/warehouse-ops/ntconsole/internal/interfaces/http/handlers/ticket"
	"github.com/warehouse-ops/ntconsole/internal/interfaces/http/middleware"
	"github.com/warehouse-ops/ntconsole/internal/interfaces/http/routes"
	"github.com/warehouse-ops/ntconsole/internal/shared/logger"
)

// Router represents the HTTP router configuration
type Router struct {
	engine        *gin.Engine
	ticketHandler *tickethandlers.TicketHandler
	logger        logger.Interface
}

// NewRouter creates a router serving ticketHandler.
func NewRouter(ticketHandler *tickethandlers.TicketHandler, log logger.Interface) *Router {
	return &Router{
		engine:        gin.New(),
		ticketHandler: ticketHandler,
		logger:        log,
	}
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes(allowedOrigins []string) {
	r.engine.Use(middleware.RequestLogger(r.logger))
	r.engine.Use(middleware.Recovery(r.logger))
	r.engine.Use(middleware.CORS(allowedOrigins))

	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.engine.GET("/metrics", metrics.Handler())
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api")
	routes.SetupTicketRoutes(api, &routes.TicketRouteConfig{
		TicketHandler: r.ticketHandler,
	})
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
