package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tanaikit/pool2api/internal/quota"
)

// QuotaAdmission runs the quota checks for the authenticated key. Denials
// return 429 before any upstream work happens. The concurrency slot is freed
// when the handler chain finishes, including streamed responses, because gin
// runs this function's deferred release after c.Next returns.
func QuotaAdmission(enforcer *quota.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := GetAPIKey(c)
		if key == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"type": "authentication_error", "message": "missing api key"},
			})
			return
		}
		release, denial := enforcer.Admit(c.Request.Context(), key, c.ClientIP())
		if denial != nil {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{"type": "rate_limit_error", "message": denial.Reason},
			})
			return
		}
		defer release()
		c.Next()
	}
}
