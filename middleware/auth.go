package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"dandi-api/helper"
	"dandi-api/models"
)

const principalKey = "principal"

type Claims struct {
	UserID   uint            `json:"user_id"`
	Username string          `json:"username"`
	Role     models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(h *helper.HTTPHelper, secret []byte) gin.HandlerFunc {
	return authenticate(h, secret, true)
}

// OptionalAuth attaches the principal when a valid token is sent and lets
// anonymous requests through. A malformed or expired token is still rejected.
func OptionalAuth(h *helper.HTTPHelper, secret []byte) gin.HandlerFunc {
	return authenticate(h, secret, false)
}

func authenticate(h *helper.HTTPHelper, secret []byte, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			if required {
				h.SendError(c, &models.ErrorUnauthorized{Message: "Authorization header required"})
				return
			}
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			h.SendError(c, &models.ErrorUnauthorized{Message: "Bearer token required"})
			return
		}

		principal, err := ParseToken(tokenString, secret)
		if err != nil {
			h.SendError(c, &models.ErrorUnauthorized{Message: "Invalid token: " + err.Error()})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// ParseToken verifies an HS256 token and returns its principal.
func ParseToken(tokenString string, secret []byte) (*models.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	return &models.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// CurrentPrincipal returns the authenticated caller, or nil for anonymous
// requests.
func CurrentPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}
