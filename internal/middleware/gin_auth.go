package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinAttachClient adapts the net/http ClientMiddleware to Gin.
func GinAttachClient(m *ClientMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			c.Next()
		})

		m.AttachClient(next).ServeHTTP(c.Writer, c.Request)

		// the middleware answered the request itself
		if !called {
			c.Abort()
		}
	}
}
