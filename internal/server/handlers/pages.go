package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mozillians/internal/server/mw"
	"mozillians/internal/server/resp"
)

// GET /<locale>/
func Home(c *gin.Context) {
	c.HTML(http.StatusOK, "home.html", gin.H{
		"Profile": mw.CurrentProfile(c),
		"Locale":  resp.Lang(c),
	})
}
