// Package handler exposes the engine over HTTP: anonymous tokens and the
// WebSocket transport for web users, the admin API and operational endpoints.
package handler

import (
	"anonchat/backend/internal/chathub"
	"anonchat/backend/internal/metrics"
	"anonchat/backend/internal/models"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AdminEngine is the part of the engine the HTTP API drives.
type AdminEngine interface {
	EnsureUser(ctx context.Context, userID, language string) (models.User, bool, error)
	AdminStats(ctx context.Context) (models.Stats, error)
	AdminBan(ctx context.Context, userID string) error
	AdminUnban(ctx context.Context, userID string) error
	AdminCreditBalance(ctx context.Context, userID string, amount int64) (int64, error)
	AdminDebitBalance(ctx context.Context, userID string, amount int64) (int64, error)
	AdminTerminateAll(ctx context.Context) int
	Verify() error
}

// Handler holds the hub, the engine and the token settings.
type Handler struct {
	Hub             *chathub.ManagerService
	Engine          AdminEngine
	Secret          []byte
	AdminPassword   string
	DefaultLanguage string
	TokenTTL        time.Duration
}

func NewHandler(hub *chathub.ManagerService, eng AdminEngine, secret, adminPassword, defaultLanguage string) *Handler {
	return &Handler{
		Hub:             hub,
		Engine:          eng,
		Secret:          []byte(secret),
		AdminPassword:   adminPassword,
		DefaultLanguage: defaultLanguage,
		TokenTTL:        72 * time.Hour,
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/anonid", h.GetAnonID)
	r.GET("/ws", h.ServeWebSocket)

	r.POST("/admin/login", h.AdminLogin)
	admin := r.Group("/admin", h.RequireAdmin)
	admin.GET("/stats", h.Stats)
	admin.POST("/users/:id/ban", h.Ban)
	admin.POST("/users/:id/unban", h.Unban)
	admin.POST("/users/:id/credit", h.Credit)
	admin.POST("/users/:id/debit", h.Debit)
	admin.POST("/sessions/terminate-all", h.TerminateAll)
	return r
}

// Health reports whether the engine's invariants hold.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Engine.Verify(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
