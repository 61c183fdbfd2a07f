package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/freightwise/shipmentqa/internal/server/middleware"
	"github.com/freightwise/shipmentqa/pkg/logger"
)

// DeleteChatHandler forgets a conversation's short-term state.
func DeleteChatHandler(c echo.Context) error {
	type deleteChatParams struct {
		ConversationID string `param:"conversation_id" validate:"required"`
	}

	params := new(deleteChatParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
	}

	ctx := c.Request().Context()
	sessions := c.(*middleware.AppContext).App.Sessions

	slots, ok, err := sessions.Get(ctx, params.ConversationID)
	if err != nil {
		logger.Error("Failed to load conversation", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}
	if !ok || !ownsConversation(user, slots) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Conversation not found"})
	}

	if err := sessions.Delete(ctx, params.ConversationID); err != nil {
		logger.Error("Failed to delete conversation", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Conversation deleted"})
}
