package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/tanaikit/pool2api/internal/store"
)

// APIKeyContextKey is the gin context key carrying the authenticated key
// record.
const APIKeyContextKey = "api_key"

// KeyFinder resolves presented API keys. Satisfied by store.Store.
type KeyFinder interface {
	FindAPIKey(ctx context.Context, key string) (*store.APIKey, error)
	TouchAPIKey(ctx context.Context, id int64) error
}

// APIKeyAuth authenticates requests via Authorization: Bearer or X-API-Key.
// The resolved record lands in the context for the quota middleware and the
// handlers.
func APIKeyAuth(finder KeyFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := extractKey(c)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"type": "authentication_error", "message": "missing api key"},
			})
			return
		}
		key, err := finder.FindAPIKey(c.Request.Context(), presented)
		if err != nil {
			if errors.Is(err, store.ErrAPIKeyNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": gin.H{"type": "authentication_error", "message": "invalid api key"},
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{"type": "api_error", "message": "authentication unavailable"},
			})
			return
		}
		if touchErr := finder.TouchAPIKey(c.Request.Context(), key.ID); touchErr != nil {
			log.Debugf("failed to touch api key %d: %v", key.ID, touchErr)
		}
		c.Set(APIKeyContextKey, key)
		c.Next()
	}
}

// GetAPIKey returns the authenticated key record set by APIKeyAuth.
func GetAPIKey(c *gin.Context) *store.APIKey {
	if v, ok := c.Get(APIKeyContextKey); ok {
		if key, ok := v.(*store.APIKey); ok {
			return key
		}
	}
	return nil
}

func extractKey(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return strings.TrimSpace(c.GetHeader("X-API-Key"))
}
