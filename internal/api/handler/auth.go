package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	roleAnon  = "anon"
	roleAdmin = "admin"
	issuer    = "anonchat-service"
)

var (
	errWrongRole = errors.New("token has the wrong role")
	errNoSecret  = errors.New("token secret is not configured")
)

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func (h *Handler) issueToken(subject, role string) (string, error) {
	if len(h.Secret) == 0 {
		return "", errNoSecret
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.TokenTTL)),
		},
	})
	return token.SignedString(h.Secret)
}

// parseToken validates the token and returns its subject.
// An empty secret rejects every token, since anyone can sign with it.
func (h *Handler) parseToken(tokenString, role string) (string, error) {
	if len(h.Secret) == 0 {
		return "", errNoSecret
	}
	var cl claims
	_, err := jwt.ParseWithClaims(tokenString, &cl, func(*jwt.Token) (any, error) {
		return h.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", err
	}
	if cl.Role != role {
		return "", errWrongRole
	}
	return cl.Subject, nil
}

// bearerToken reads the token from the Authorization header, or from the
// token query parameter for browsers that cannot set headers on WebSockets.
func bearerToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return c.Query("token")
}

// GetAnonID creates an anonymous user ID and returns a token for it.
func (h *Handler) GetAnonID(c *gin.Context) {
	anonID := uuid.NewString()
	token, err := h.issueToken(anonID, roleAnon)
	if err != nil {
		log.Error().Str("module", "api").Err(err).Msg("failed to sign anon token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": anonID})
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLogin exchanges the admin password for an admin token.
func (h *Handler) AdminLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	if h.AdminPassword == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.AdminPassword)) != 1 {
		log.Warn().Str("module", "api").Str("ip", c.ClientIP()).Msg("failed admin login")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	token, err := h.issueToken("admin", roleAdmin)
	if err != nil {
		log.Error().Str("module", "api").Err(err).Msg("failed to sign admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// RequireAdmin rejects requests without a valid admin token.
func (h *Handler) RequireAdmin(c *gin.Context) {
	if _, err := h.parseToken(bearerToken(c), roleAdmin); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
