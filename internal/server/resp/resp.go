package resp

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"mozillians/internal/i18n"
)

// CtxLocale is the gin context key holding the negotiated locale.
const CtxLocale = "locale"

// Envelope is the unified response structure for ALL API endpoints.
type Envelope struct {
	Status      string `json:"status"`      // success | error
	Code        int    `json:"code"`        // usually HTTP status code
	Description string `json:"description"` // human readable
	Data        any    `json:"data"`        // object | array | null
}

// Lang is the locale of the current request: the one set by the locale
// middleware, else the raw Accept-Language header.
func Lang(c *gin.Context) string {
	if l := c.GetString(CtxLocale); l != "" {
		return l
	}
	return c.GetHeader("Accept-Language")
}

// Success writes a success envelope; msgID is translated.
func Success(c *gin.Context, httpCode int, msgID string, data any) {
	c.JSON(httpCode, Envelope{
		Status:      "success",
		Code:        httpCode,
		Description: i18n.T(Lang(c), msgID),
		Data:        data,
	})
}

func OK(c *gin.Context, data any) {
	Success(c, http.StatusOK, "ok", data)
}

// Error writes an error envelope; msgID is translated.
func Error(c *gin.Context, httpCode int, msgID string) {
	c.JSON(httpCode, Envelope{
		Status:      "error",
		Code:        httpCode,
		Description: i18n.T(Lang(c), msgID),
		Data:        nil,
	})
}

// Abort writes the error envelope and stops the handler chain.
func Abort(c *gin.Context, httpCode int, msgID string) {
	Error(c, httpCode, msgID)
	c.Abort()
}

// Raw writes an already encoded JSON document as is.
func Raw(c *gin.Context, body json.RawMessage) {
	c.Data(http.StatusOK, "application/json", body)
}
