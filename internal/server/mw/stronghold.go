package mw

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"mozillians/internal/server/resp"
)

// PublicRoutes is the set of route patterns (gin FullPath) open to
// anonymous visitors.
type PublicRoutes struct {
	mu    sync.RWMutex
	paths map[string]bool
}

func NewPublicRoutes() *PublicRoutes {
	return &PublicRoutes{paths: make(map[string]bool)}
}

// Allow marks a route pattern as public.
func (p *PublicRoutes) Allow(fullPath string) {
	p.mu.Lock()
	p.paths[fullPath] = true
	p.mu.Unlock()
}

func (p *PublicRoutes) Has(fullPath string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paths[fullPath]
}

// Stronghold requires a login everywhere except on public routes and paths
// matching one of the exception patterns.
func Stronghold(public *PublicRoutes, exceptions []string, loginURL string) (gin.HandlerFunc, error) {
	exempt, err := compilePatterns(exceptions)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		if CurrentProfile(c) != nil ||
			(c.FullPath() != "" && public.Has(c.FullPath())) ||
			matchAny(exempt, c.Request.URL.Path) {
			c.Next()
			return
		}
		denyAnonymous(c, loginURL)
	}, nil
}

// LoginRequired guards a single route regardless of stronghold exceptions.
func LoginRequired(loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentProfile(c) == nil {
			denyAnonymous(c, loginURL)
			return
		}
		c.Next()
	}
}

// denyAnonymous answers API calls with 401 and sends browsers to the login page.
func denyAnonymous(c *gin.Context, loginURL string) {
	if strings.HasPrefix(c.Request.URL.Path, "/api/") {
		resp.Abort(c, http.StatusUnauthorized, "error.unauthorized")
		return
	}
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	c.Redirect(http.StatusFound, loginURL+sep+"next="+url.QueryEscape(c.Request.URL.RequestURI()))
	c.Abort()
}
