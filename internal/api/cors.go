package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// corsMiddleware applies permissive cross-origin headers to every response,
// including the OPTIONS preflight: the chat widget calls the advisor endpoint
// directly from the browser with no same-origin constraint.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Accept")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
