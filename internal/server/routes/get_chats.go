package routes

import (
	"net/http"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/freightwise/shipmentqa/internal/server/middleware"
	"github.com/freightwise/shipmentqa/pkg/logger"
	"github.com/freightwise/shipmentqa/pkg/session"
)

// ownsConversation reports whether the caller may see the stored slots. Slots
// persisted before identity stamping carry an empty identity and are treated
// as owned by nobody except the master key.
func ownsConversation(user *middleware.AppUser, slots session.Slots) bool {
	if user.Identity == "*" {
		return true
	}
	return slots.Identity != "" && slots.Identity == user.Identity
}

// GetChatHandler returns the stored short-term state of a conversation.
func GetChatHandler(c echo.Context) error {
	type getChatParams struct {
		ConversationID string `param:"conversation_id" validate:"required"`
	}

	type responseData struct {
		ConversationID  string   `json:"conversation_id"`
		LastIntent      string   `json:"last_intent"`
		LastIdentifiers []string `json:"last_identifiers"`
		LastQuestion    string   `json:"last_question"`
		Turns           int      `json:"turns"`
	}

	params := new(getChatParams)
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
	// A conversation owned by another principal looks identical to a missing
	// one, so ids cannot be enumerated.
	if !ok || !ownsConversation(user, slots) {
		return c.JSON(http.StatusNotFound, map[string]string{"message": "Conversation not found"})
	}

	return c.JSON(http.StatusOK, responseData{
		ConversationID:  params.ConversationID,
		LastIntent:      slots.LastIntent,
		LastIdentifiers: slots.IdentifierValues(),
		LastQuestion:    slots.LastQuestion,
		Turns:           slots.Turns,
	})
}
