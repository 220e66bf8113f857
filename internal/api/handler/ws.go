package handler

import (
	"anonchat/backend/internal/chathub"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWebSocket upgrades an authenticated anonymous user to a WebSocket
// client. Optional query parameters: lang and name (shown on reveal).
func (h *Handler) ServeWebSocket(c *gin.Context) {
	anonID, err := h.parseToken(bearerToken(c), roleAnon)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	lang := c.DefaultQuery("lang", h.DefaultLanguage)
	u, _, err := h.Engine.EnsureUser(c.Request.Context(), anonID, lang)
	if err != nil {
		log.Error().Str("module", "api").Str("user_id", anonID).Err(err).Msg("failed to register user")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	if u.Language != "" {
		lang = u.Language
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Str("module", "api").Str("user_id", anonID).Err(err).Msg("websocket upgrade failed")
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, anonID, lang, c.Query("name"))
	h.Hub.Register(client)
	client.Run()
}
