package mw

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	CtxRequestID    = "request_id"
)

// RequestID keeps a caller supplied X-Request-ID when it is a UUID and
// generates one otherwise. The ID is echoed in the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := ""
		if id, err := uuid.Parse(c.GetHeader(HeaderRequestID)); err == nil {
			rid = id.String()
		} else {
			rid = uuid.NewString()
		}
		c.Set(CtxRequestID, rid)
		c.Header(HeaderRequestID, rid)
		c.Next()
	}
}
