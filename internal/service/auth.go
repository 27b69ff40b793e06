package service

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// AuthService guards the admin API with TOTP one-time codes. Feed approver
// and blacklist changes go through it; read endpoints stay open.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string
}

func NewAuthService(logger *zap.Logger, totpSecret string) *AuthService {
	return &AuthService{
		logger:     logger,
		totpSecret: totpSecret,
	}
}

func (a *AuthService) ValidateToken(token string) bool {
	valid := totp.Validate(token, a.totpSecret)
	if !valid {
		a.logger.Warn("TOTP token validation failed")
	}
	return valid
}

// AuthMiddleware rejects requests without a valid X-Auth-Code header. When
// no secret is configured the admin API is disabled entirely.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.totpSecret == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "Admin API is disabled"})
			c.Abort()
			return
		}

		code := c.GetHeader("X-Auth-Code")
		if code == "" || !a.ValidateToken(code) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}
