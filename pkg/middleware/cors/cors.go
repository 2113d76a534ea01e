package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const allowedHeaders = "Authorization, Content-Type, X-Requested-With, X-Request-ID, Idempotency-Key"

// New returns a CORS middleware that honors a list of allowed origins. An empty
// list allows every origin, which is what local frontend development expects.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		originSet[strings.TrimRight(origin, "/")] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		header := c.Writer.Header()
		switch {
		case origin != "" && (allowAll || hasOrigin(originSet, origin)):
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		case origin == "" && allowAll:
			header.Set("Access-Control-Allow-Origin", "*")
		}

		header.Set("Vary", "Origin")
		header.Set("Access-Control-Allow-Headers", allowedHeaders)
		header.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		header.Set("Access-Control-Expose-Headers", "X-Request-ID, Idempotent-Replay")
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func hasOrigin(originSet map[string]struct{}, origin string) bool {
	_, ok := originSet[strings.TrimRight(origin, "/")]
	return ok
}
