package server

import (
	"errors"
	"net/http"

	"doodle-duel/internal/game"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type bindMessages map[string]map[string]string

var playerMessages = bindMessages{
	"PlayerID": {
		"required": "player id is required",
		"playerid": "player id must be 1-64 letters, digits, '-' or '_'",
	},
	"HostID": {
		"required": "host id is required",
		"playerid": "host id must be 1-64 letters, digits, '-' or '_'",
	},
	"NewHostID": {
		"required": "new host id is required",
		"playerid": "new host id must be 1-64 letters, digits, '-' or '_'",
	},
	"Nickname": {
		"required": "nickname is required",
		"nickname": "nickname must be 1-20 plain characters",
	},
	"JudgeModel": {
		"max": "judge model is too long",
	},
	"CanvasData": {
		"required": "canvas data is required",
		"max":      "drawing is too large",
	},
}

func bindJSON(c *gin.Context, req any, messages bindMessages, fallback string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  resolveBindError(err, messages, fallback),
			"reason": game.Reason(game.ErrInvalidInput),
		})
		return false
	}
	return true
}

func bindURI(c *gin.Context, req any) bool {
	if err := c.ShouldBindUri(req); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":  game.ErrRoomNotFound.Error(),
			"reason": game.Reason(game.ErrRoomNotFound),
		})
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid query",
			"reason": game.Reason(game.ErrInvalidInput),
		})
		return false
	}
	return true
}

func resolveBindError(err error, messages bindMessages, fallback string) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, verr := range verrs {
			if fieldMsgs, ok := messages[verr.Field()]; ok {
				if msg, ok := fieldMsgs[verr.Tag()]; ok {
					return msg
				}
			}
		}
	}
	if fallback != "" {
		return fallback
	}
	return "invalid request"
}
