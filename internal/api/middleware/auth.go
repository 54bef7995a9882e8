package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/internal/auth"
	"github.com/amiyamandal-dev/feedsync/pkg/response"
)

// UserTokenHeader carries the signed user token next to the public API key
const UserTokenHeader = "X-User-Token"

type userIDKey struct{}

// AuthMiddleware authenticates a public API key plus a user token. Both may
// come from headers or, for websocket upgrades, from the api_key and
// user_token query parameters.
func AuthMiddleware(jwtManager *auth.JWTManager, publicKeys []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey, ok := apiKeyFromRequest(c)
		if !ok {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}
		if apiKey == "" {
			response.Unauthorized(c, "Missing API key")
			c.Abort()
			return
		}
		if strings.HasPrefix(apiKey, "sk_") {
			response.Unauthorized(c, "Secret keys must not be used from clients")
			c.Abort()
			return
		}
		if len(publicKeys) > 0 && !slices.Contains(publicKeys, apiKey) {
			response.Unauthorized(c, "Unknown API key")
			c.Abort()
			return
		}

		token := c.GetHeader(UserTokenHeader)
		if token == "" {
			token = c.Query("user_token")
		}
		if token == "" {
			response.Unauthorized(c, "Missing user token")
			c.Abort()
			return
		}

		claims, err := jwtManager.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), userIDKey{}, claims.UserID))

		c.Next()
	}
}

func apiKeyFromRequest(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return c.Query("api_key"), true
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", false
	}
	return parts[1], true
}

// GetUserID retrieves the user ID from the request context
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if userID == nil {
		return ""
	}
	return userID.(string)
}

// UserIDFromRequest returns the authenticated user of a plain http request
// that passed through AuthMiddleware
func UserIDFromRequest(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey{}).(string)
	return userID
}
