package mw

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"mozillians/internal/config"
)

// SecurityHeaders adds HSTS and the browser hardening headers to every response.
func SecurityHeaders(cfg config.Security) gin.HandlerFunc {
	hsts := ""
	if cfg.HSTSSeconds > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSSeconds)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
	}
	return func(c *gin.Context) {
		h := c.Writer.Header()
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		if cfg.ContentTypeNosniff {
			h.Set("X-Content-Type-Options", "nosniff")
		}
		if cfg.BrowserXSSFilter {
			h.Set("X-XSS-Protection", "1; mode=block")
		}
		if cfg.XFrameOptions != "" {
			h.Set("X-Frame-Options", cfg.XFrameOptions)
		}
		if cfg.ReferrerHeader {
			h.Set("Referrer-Policy", "no-referrer")
		}
		c.Next()
	}
}

// ContentSecurityPolicy sets the CSP header built once from cfg.
func ContentSecurityPolicy(cfg config.CSP) gin.HandlerFunc {
	header := "Content-Security-Policy"
	if cfg.ReportOnly {
		header = "Content-Security-Policy-Report-Only"
	}
	policy := BuildCSP(cfg)
	return func(c *gin.Context) {
		if policy != "" {
			c.Header(header, policy)
		}
		c.Next()
	}
}

// BuildCSP renders the policy directives in a fixed order.
func BuildCSP(cfg config.CSP) string {
	directives := []struct {
		name    string
		sources []string
	}{
		{"default-src", cfg.DefaultSrc},
		{"font-src", cfg.FontSrc},
		{"img-src", cfg.ImgSrc},
		{"script-src", cfg.ScriptSrc},
		{"style-src", cfg.StyleSrc},
		{"child-src", cfg.ChildSrc},
	}
	var parts []string
	for _, d := range directives {
		if len(d.sources) == 0 {
			continue
		}
		parts = append(parts, d.name+" "+strings.Join(d.sources, " "))
	}
	if cfg.ReportEnable && cfg.ReportURI != "" {
		parts = append(parts, "report-uri "+cfg.ReportURI)
	}
	return strings.Join(parts, "; ")
}

// NeverCache marks the response as not cacheable anywhere.
func NeverCache() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Cache-Control", "max-age=0, no-cache, no-store, must-revalidate, private")
		h.Set("Expires", time.Now().UTC().Format(http.TimeFormat))
		c.Next()
	}
}
