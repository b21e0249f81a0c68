// Package routes binds handlers to the console API paths.
package routes

import (
	"github.com/gin-gonic/gin"

	tickethandlers "github.com/warehouse-ops/ntconsole/internal/interfaces/http/handlers/ticket"
)

type TicketRouteConfig struct {
	TicketHandler *tickethandlers.TicketHandler
}

func SetupTicketRoutes(api *gin.RouterGroup, config *TicketRouteConfig) {
	h := config.TicketHandler

	tickets := api.Group("/tickets")
	{
		tickets.GET("", h.ListTickets)
		tickets.POST("", h.CreateTicket)

		// Sub-resources come before the bare /:id routes.
		tickets.GET("/:id/items", h.ListLineItems)
		tickets.POST("/:id/items", h.CreateLineItem)
		tickets.POST("/:id/items/bulk", h.BulkInsert)

		tickets.GET("/:id", h.GetTicket)
		tickets.DELETE("/:id", h.DeleteTicket)
	}

	items := api.Group("/items")
	{
		items.GET("/overdue", h.ListOverdue)
		items.PATCH("/:id/status", h.UpdateLineItemStatus)
		items.DELETE("/:id", h.DeleteLineItem)
	}

	api.GET("/shifts/current", h.CurrentShift)
	api.GET("/pending", h.ListPending)
}
