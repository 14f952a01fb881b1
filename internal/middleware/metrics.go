package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestObserver records one finished request
type RequestObserver interface {
	ObserveRequest(method, route string, status int, seconds float64)
}

// Metrics returns a Gin middleware that reports each request to observer,
// labelled by route template rather than raw path
func Metrics(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		observer.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start).Seconds())
	}
}
