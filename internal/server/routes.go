package server

import (
	"github.com/freightwise/shipmentqa/internal/server/middleware"
	"github.com/freightwise/shipmentqa/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Chat routes
	apiRoutes.POST("/chat", routes.ChatHandler)
	apiRoutes.GET("/chats/:conversation_id", routes.GetChatHandler)
	apiRoutes.DELETE("/chats/:conversation_id", routes.DeleteChatHandler)
}
