package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mozillians/internal/oidc"
	"mozillians/internal/profiles"
	"mozillians/internal/security"
	"mozillians/internal/server/mw"
	"mozillians/internal/store"
)

type OIDCProvider interface {
	AuthURL(state, nonce string) string
	Exchange(ctx context.Context, code string) (oidc.Tokens, error)
	UserInfo(ctx context.Context, accessToken string) (oidc.UserInfo, error)
}

type IDTokenVerifier interface {
	Verify(token, nonce string) (*security.IDClaims, error)
}

type AuthStates interface {
	Begin(ctx context.Context, next string) (string, store.AuthState, error)
	Consume(ctx context.Context, state string) (store.AuthState, error)
}

type Sessions interface {
	Create(ctx context.Context, profileID uuid.UUID, accessToken string) (string, error)
	Destroy(ctx context.Context, token string) error
}

type ProfileFinder interface {
	FindOrCreate(ctx context.Context, email, fullName string) (*profiles.Profile, bool, error)
}

// OIDCOptions are the cookie and redirect settings of the login flow.
type OIDCOptions struct {
	CookieName       string
	CookieSecure     bool
	CookieHTTPOnly   bool
	SessionTTL       time.Duration
	LoginURL         string
	LoginRedirectURL string
	StoreAccessToken bool
}

type OIDCHandler struct {
	logger   *zap.Logger
	provider OIDCProvider
	verifier IDTokenVerifier
	states   AuthStates
	sessions Sessions
	people   ProfileFinder
	opts     OIDCOptions
}

func NewOIDCHandler(
	logger *zap.Logger,
	provider OIDCProvider,
	verifier IDTokenVerifier,
	states AuthStates,
	sessions Sessions,
	people ProfileFinder,
	opts OIDCOptions,
) *OIDCHandler {
	return &OIDCHandler{
		logger:   logger,
		provider: provider,
		verifier: verifier,
		states:   states,
		sessions: sessions,
		people:   people,
		opts:     opts,
	}
}

// GET /oidc/authenticate/
func (h *OIDCHandler) Authenticate(c *gin.Context) {
	state, st, err := h.states.Begin(c.Request.Context(), safeNext(c.Query("next")))
	if err != nil {
		h.logger.Error("oidc state store failed", zap.Error(err))
		h.fail(c)
		return
	}
	c.Redirect(http.StatusFound, h.provider.AuthURL(state, st.Nonce))
}

// GET /oidc/callback/
func (h *OIDCHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	if e := c.Query("error"); e != "" {
		h.logger.Warn("oidc provider returned an error", zap.String("error", e), zap.String("description", c.Query("error_description")))
		h.fail(c)
		return
	}
	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		h.logger.Warn("oidc callback without state or code")
		h.fail(c)
		return
	}

	st, err := h.states.Consume(ctx, state)
	if err != nil {
		h.logger.Warn("oidc state mismatch", zap.Error(err))
		h.fail(c)
		return
	}

	tokens, err := h.provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("oidc code exchange failed", zap.Error(err))
		h.fail(c)
		return
	}
	claims, err := h.verifier.Verify(tokens.IDToken, st.Nonce)
	if err != nil {
		h.logger.Warn("oidc id token rejected", zap.Error(err))
		h.fail(c)
		return
	}

	email, name := claims.Email, claims.Name
	if tokens.AccessToken != "" {
		info, err := h.provider.UserInfo(ctx, tokens.AccessToken)
		if err != nil {
			h.logger.Warn("oidc userinfo failed", zap.Error(err))
			h.fail(c)
			return
		}
		if info.Email != "" {
			email = info.Email
		}
		if info.Name != "" {
			name = info.Name
		}
	}
	if email == "" {
		h.logger.Warn("oidc login without email", zap.String("sub", claims.Subject))
		h.fail(c)
		return
	}

	p, created, err := h.people.FindOrCreate(ctx, email, name)
	if err != nil {
		h.logger.Error("profile lookup failed", zap.Error(err))
		h.fail(c)
		return
	}

	accessToken := ""
	if h.opts.StoreAccessToken {
		accessToken = tokens.AccessToken
	}
	token, err := h.sessions.Create(ctx, p.ID, accessToken)
	if err != nil {
		h.logger.Error("session create failed", zap.Error(err))
		h.fail(c)
		return
	}
	h.setCookie(c, token, int(h.opts.SessionTTL.Seconds()))
	h.logger.Info("login", zap.String("username", p.Username), zap.Bool("new_profile", created))

	next := st.Next
	if next == "" {
		next = h.opts.LoginRedirectURL
	}
	c.Redirect(http.StatusFound, next)
}

// POST /oidc/logout/
func (h *OIDCHandler) Logout(c *gin.Context) {
	token := c.GetString(mw.CtxSessionToken)
	if token == "" {
		token, _ = c.Cookie(h.opts.CookieName)
	}
	if token != "" {
		if err := h.sessions.Destroy(c.Request.Context(), token); err != nil {
			h.logger.Warn("session destroy failed", zap.Error(err))
		}
	}
	h.setCookie(c, "", -1)
	c.Redirect(http.StatusFound, h.opts.LoginURL)
}

func (h *OIDCHandler) fail(c *gin.Context) {
	c.Redirect(http.StatusFound, h.opts.LoginURL)
}

func (h *OIDCHandler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.opts.CookieName, value, maxAge, "/", "", h.opts.CookieSecure, h.opts.CookieHTTPOnly)
}

// safeNext keeps only same-site absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return ""
	}
	return next
}
