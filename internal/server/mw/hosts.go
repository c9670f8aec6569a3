package mw

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"mozillians/internal/server/resp"
)

// AllowedHosts rejects requests whose Host is not listed. An entry with a
// leading dot matches the domain and all of its subdomains; "*" allows any.
func AllowedHosts(hosts []string) gin.HandlerFunc {
	allowAll := false
	patterns := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "*" {
			allowAll = true
		}
		if h != "" {
			patterns = append(patterns, h)
		}
	}
	return func(c *gin.Context) {
		if allowAll || hostAllowed(c.Request.Host, patterns) {
			c.Next()
			return
		}
		resp.Abort(c, http.StatusBadRequest, "error.invalid_host")
	}
}

func hostAllowed(host string, patterns []string) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if strings.HasPrefix(p, ".") {
			if host == p[1:] || strings.HasSuffix(host, p) {
				return true
			}
			continue
		}
		if host == p {
			return true
		}
	}
	return false
}
