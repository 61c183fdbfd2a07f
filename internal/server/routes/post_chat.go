package routes

import (
	"encoding/json"
	"net/http"
	"strings"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"

	"github.com/freightwise/shipmentqa/internal/server/middleware"
	"github.com/freightwise/shipmentqa/pkg/answer"
	"github.com/freightwise/shipmentqa/pkg/logger"
	"github.com/freightwise/shipmentqa/pkg/pipeline"
	"github.com/freightwise/shipmentqa/pkg/scope"
)

// ChatHandler answers one question turn. The declared consignee codes from
// the request body, falling back to the token's codes, are intersected with
// the identity registry before the pipeline runs; an empty intersection is a
// 403 with the canonical phrasing.
func ChatHandler(c echo.Context) error {
	type chatParams struct {
		Question       string          `json:"question" validate:"required"`
		ConversationID string          `json:"conversation_id"`
		ConsigneeCodes json.RawMessage `json:"consignee_codes"`
	}

	type chatResponse struct {
		ConversationID string              `json:"conversation_id"`
		TraceID        string              `json:"trace_id"`
		Intent         string              `json:"intent"`
		Answer         string              `json:"answer"`
		Notices        []string            `json:"notices,omitempty"`
		Evidence       []pipeline.Evidence `json:"evidence,omitempty"`
		Table          *pipeline.Table     `json:"table,omitempty"`
	}

	params := new(chatParams)
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
	app := c.(*middleware.AppContext).App

	declared := decodeConsigneeCodes(params.ConsigneeCodes)
	if len(declared) == 0 {
		declared = user.ConsigneeCodes
	}
	declared = scope.NormalizeCodes(declared)

	allowed := app.Registry.Allowed(user.Identity, declared)
	if len(allowed) == 0 {
		return c.JSON(http.StatusForbidden, map[string]string{"message": answer.MsgNotAuthorized})
	}

	ctx := c.Request().Context()
	res, err := app.Pipeline.Run(ctx, pipeline.Request{
		ConversationID: params.ConversationID,
		Identity:       user.Identity,
		Question:       params.Question,
		ConsigneeCodes: allowed,
	})
	if err != nil {
		logger.Warn("chat turn rejected", "identity", user.Identity, "err", err)
		return c.JSON(http.StatusForbidden, map[string]string{"message": answer.MsgNotAuthorized})
	}

	return c.JSON(http.StatusOK, chatResponse{
		ConversationID: res.ConversationID,
		TraceID:        res.TraceID,
		Intent:         res.Intent,
		Answer:         res.Answer,
		Notices:        res.Notices,
		Evidence:       res.Evidence,
		Table:          res.Table,
	})
}

// decodeConsigneeCodes accepts either a JSON string array or a single
// comma-packed string, since both shapes occur in the wild.
func decodeConsigneeCodes(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}

	var packed string
	if err := json.Unmarshal(raw, &packed); err == nil {
		return strings.Split(packed, ",")
	}
	return nil
}
