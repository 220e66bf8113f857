package handler

import (
	"anonchat/backend/internal/engine"
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type amountRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

// writeError maps engine errors onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownUser):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidAmount):
		status = http.StatusBadRequest
	case engine.KindOf(err) == engine.KindStateConflict:
		status = http.StatusConflict
	case engine.KindOf(err) == engine.KindPolicy:
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		log.Error().Str("module", "api").Str("path", c.FullPath()).Err(err).Msg("admin request failed")
	}
	c.JSON(status, gin.H{"error": engine.CodeOf(err), "message": err.Error()})
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Engine.AdminStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) Ban(c *gin.Context) {
	if err := h.Engine.AdminBan(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "banned": true})
}

func (h *Handler) Unban(c *gin.Context) {
	if err := h.Engine.AdminUnban(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "banned": false})
}

func (h *Handler) Credit(c *gin.Context) {
	h.adjust(c, h.Engine.AdminCreditBalance)
}

func (h *Handler) Debit(c *gin.Context) {
	h.adjust(c, h.Engine.AdminDebitBalance)
}

func (h *Handler) adjust(c *gin.Context, op func(ctx context.Context, userID string, amount int64) (int64, error)) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	balance, err := op(c.Request.Context(), c.Param("id"), req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": c.Param("id"), "balance": balance})
}

func (h *Handler) TerminateAll(c *gin.Context) {
	n := h.Engine.AdminTerminateAll(c.Request.Context())
	log.Info().Str("module", "api").Int("sessions", n).Msg("admin terminated all sessions")
	c.JSON(http.StatusOK, gin.H{"terminated": n})
}
