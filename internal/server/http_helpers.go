package server

import (
	"errors"
	"net/http"

	"doodle-duel/internal/game"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusForReason(reason string) int {
	switch reason {
	case "not_found", "player_not_found":
		return http.StatusNotFound
	case "invalid_input", "unknown_judge":
		return http.StatusBadRequest
	case "invariant_violation", "internal":
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

// writeError maps a manager error to its status and reason code. Only
// server-side failures are logged.
func (s *Server) writeError(c *gin.Context, err error) {
	reason := game.Reason(err)
	status := statusForReason(reason)
	message := err.Error()
	if status == http.StatusInternalServerError {
		var ie *game.InvariantError
		if !errors.As(err, &ie) {
			message = "internal error"
		}
		s.logger.Error("request error",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, gin.H{
		"error":  message,
		"reason": reason,
	})
}
