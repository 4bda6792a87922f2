package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinAdapter runs a net/http middleware inside a gin chain. When the
// middleware answers the request itself the rest of the chain is aborted.
func GinAdapter(mw func(http.Handler) http.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		called := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			c.Request = r
			c.Next()
		})

		mw(next).ServeHTTP(c.Writer, c.Request)

		if !called {
			c.Abort()
		}
	}
}
