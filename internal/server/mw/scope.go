package mw

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// OnPrefix runs h only for request paths starting with prefix.
func OnPrefix(prefix string, h gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, prefix) {
			h(c)
			return
		}
		c.Next()
	}
}
