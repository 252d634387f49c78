package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/blackboard-backend/internal/observability"
)

// Metrics records request counts and latency. Event streams are counted by the
// SSE hub instead and only show up here once they close, without inflight.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		streaming := strings.HasSuffix(route, "/events")

		start := time.Now()
		if !streaming {
			m.ApiInflightInc()
			defer m.ApiInflightDec()
		}

		c.Next()

		if streaming {
			return
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
