package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"walletid/internal/domain"
	"walletid/internal/ratelimit"
	"walletid/internal/service"
	"walletid/internal/username"
)

const externalAuthIDKey = "externalAuthID"

// Handler wires HTTP routes to the identity service.
type Handler struct {
	identities service.IdentityService
	limiter    *ratelimit.WindowLimiter
	jwtSecret  []byte
	logger     logrus.FieldLogger
}

func NewHandler(identities service.IdentityService, limiter *ratelimit.WindowLimiter, jwtSecret string, logger logrus.FieldLogger) *Handler {
	return &Handler{
		identities: identities,
		limiter:    limiter,
		jwtSecret:  []byte(jwtSecret),
		logger:     logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
	})

	users := api.Group("/users")
	users.Use(h.rateLimitMiddleware(), h.authMiddleware())
	{
		users.POST("/resolve", h.resolve)
		users.GET("/me", h.getMe)
		users.POST("/check-username", h.checkUsername)
		users.PUT("/me", h.update)
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// rateLimitMiddleware gates every identity operation on the per-client
// window before auth or body parsing does any work.
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.limiter.Allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
		c.Next()
	}
}

// authMiddleware verifies the gateway-issued bearer token and binds the
// caller to the external auth id in its subject claim. The gateway has
// already verified the upstream identity provider; this layer only prevents
// one caller from naming another caller's id.
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return h.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		subject, err := token.Claims.GetSubject()
		if err != nil || subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token subject"})
			return
		}

		c.Set(externalAuthIDKey, subject)
		c.Next()
	}
}

func externalAuthID(c *gin.Context) string {
	return c.GetString(externalAuthIDKey)
}

type resolveRequest struct {
	LoginMethod         string `json:"login_method" binding:"required"`
	Email               string `json:"email"`
	SigninWalletAddress string `json:"signin_wallet_address"`
}

func (h *Handler) resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	projection, err := h.identities.Resolve(c.Request.Context(), service.ResolveInput{
		ExternalAuthID:      externalAuthID(c),
		LoginMethod:         req.LoginMethod,
		Email:               req.Email,
		SigninWalletAddress: req.SigninWalletAddress,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userToResponse(*projection, false)})
}

func (h *Handler) getMe(c *gin.Context) {
	projection, err := h.identities.Get(c.Request.Context(), externalAuthID(c))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userToResponse(*projection, true)})
}

type checkUsernameRequest struct {
	Username string `json:"username" binding:"required"`
}

func (h *Handler) checkUsername(c *gin.Context) {
	var req checkUsernameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	normalized, err := h.identities.CheckUsername(c.Request.Context(), req.Username, externalAuthID(c))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"available": true, "username": normalized})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusOK, gin.H{"available": false, "username": normalized})
	default:
		var verr *username.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusOK, gin.H{"available": false, "error": verr.Message, "reason": verr.Reason})
			return
		}
		h.renderError(c, err)
	}
}

type updateRequest struct {
	Username        *string `json:"username"`
	UsernameChanged bool    `json:"username_changed"`
	Avatar          *string `json:"avatar"`
}

func (h *Handler) update(c *gin.Context) {
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	projection, err := h.identities.Update(c.Request.Context(), externalAuthID(c), service.UpdateInput{
		Username:        req.Username,
		UsernameChanged: req.UsernameChanged,
		Avatar:          req.Avatar,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": userToResponse(*projection, false)})
}

// renderError maps service failures onto status codes. Validation and
// conflict outcomes carry structured detail; anything else is logged and
// returned opaque.
func (h *Handler) renderError(c *gin.Context, err error) {
	var verr *username.ValidationError
	var cerr *service.CooldownError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "reason": verr.Reason})
	case errors.As(err, &cerr):
		c.JSON(http.StatusConflict, gin.H{
			"error":          cerr.Error(),
			"days_remaining": cerr.DaysRemaining,
			"next_change":    cerr.NextChange.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, service.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
	default:
		h.logger.WithError(err).Error("identity operation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

type UserResponse struct {
	Username           string  `json:"username"`
	WalletPublicKey    string  `json:"wallet_public_key"`
	Avatar             string  `json:"avatar"`
	LastUsernameChange *string `json:"last_username_change"`
	UserID             string  `json:"user_id,omitempty"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

func userToResponse(p domain.Projection, full bool) UserResponse {
	resp := UserResponse{
		Username:        p.Username,
		WalletPublicKey: p.WalletPublicKey,
		Avatar:          p.Avatar,
	}
	if p.LastUsernameChange != nil {
		v := p.LastUsernameChange.UTC().Format(time.RFC3339)
		resp.LastUsernameChange = &v
	}
	if full {
		resp.UserID = p.UserID
		resp.CreatedAt = p.CreatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}
