package server

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mozillians/internal/config"
	"mozillians/internal/dinopark"
	"mozillians/internal/infra"
	"mozillians/internal/oidc"
	"mozillians/internal/profiles"
	"mozillians/internal/security"
	"mozillians/internal/server/handlers"
	"mozillians/internal/server/mw"
	"mozillians/internal/store"
)

//go:embed templates/*.html
var templatesFS embed.FS

const oidcStateTTL = 10 * time.Minute

type sessionStore interface {
	mw.SessionLookup
	handlers.Sessions
}

type peopleService interface {
	mw.ProfileLookup
	handlers.ProfileFinder
	handlers.Voucher
}

// services are the collaborators of the HTTP layer.
type services struct {
	sessions sessionStore
	states   handlers.AuthStates
	people   peopleService
	dinopark handlers.DinoParkAPI
	provider handlers.OIDCProvider
	verifier handlers.IDTokenVerifier
	limiter  mw.Counter
	checks   []handlers.Check
}

func NewRouter(cfg config.Config, deps *infra.Infra, logger *zap.Logger) (http.Handler, error) {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	secret, err := cfg.OIDC.SigningSecret()
	if err != nil {
		return nil, fmt.Errorf("oidc secret: %w", err)
	}

	repo := profiles.NewRepo(deps.PG)
	svc := services{
		sessions: store.NewSessionStore(deps.Redis, cfg.Site.SecretKey, cfg.Session.TTL),
		states:   store.NewOIDCStateStore(deps.Redis, oidcStateTTL),
		people: profiles.NewService(logger, repo, profiles.Options{
			Rules: profiles.Rules{
				CountLimit:        cfg.Vouching.CountLimit,
				CanVouchThreshold: cfg.Vouching.CanVouchThreshold,
			},
			AutoVouchDomains:  cfg.Vouching.AutoVouchDomains,
			AutoVouchReason:   cfg.Vouching.AutoVouchReason,
			UsernameMaxLength: cfg.Vouching.UsernameMaxLength,
		}),
		dinopark: dinopark.NewClient(cfg.DinoPark.OrgchartSvc, cfg.DinoPark.SearchSvc, cfg.DinoPark.Timeout),
		provider: oidc.NewClient(oidc.Config{
			ClientID:              cfg.OIDC.ClientID,
			ClientSecret:          cfg.OIDC.ClientSecret,
			AuthorizationEndpoint: cfg.OIDC.AuthorizationEndpoint,
			TokenEndpoint:         cfg.OIDC.TokenEndpoint,
			UserEndpoint:          cfg.OIDC.UserEndpoint,
			RedirectURL:           cfg.OIDC.CallbackURL,
		}),
		verifier: security.NewIDTokenVerifier(secret, cfg.OIDC.ClientID, ""),
		limiter:  store.NewRateLimitStore(deps.Redis),
		checks: []handlers.Check{
			{Name: "postgres", Ping: repo.Ping},
			{Name: "redis", Ping: func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }},
		},
	}
	return newEngine(cfg, svc, logger)
}

func newEngine(cfg config.Config, svc services, logger *zap.Logger) (*gin.Engine, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	locale, err := mw.LocaleURL(cfg.L10n)
	if err != nil {
		return nil, err
	}
	public := mw.NewPublicRoutes()
	stronghold, err := mw.Stronghold(public, cfg.Stronghold.Exceptions, cfg.Site.LoginURL)
	if err != nil {
		return nil, fmt.Errorf("stronghold: %w", err)
	}

	r := gin.New()
	if err := r.SetTrustedProxies(cfg.Site.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	r.SetHTMLTemplate(tmpl)
	r.Use(mw.Recovery(logger))
	r.Use(mw.RequestID())
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.AllowedHosts(cfg.Site.AllowedHosts))
	r.Use(mw.SecurityHeaders(cfg.Security))
	r.Use(mw.ContentSecurityPolicy(cfg.CSP))
	if len(cfg.Site.CORSOrigins) > 0 {
		r.Use(mw.OnPrefix("/api/", cors.New(corsConfig(cfg.Site.CORSOrigins))))
	}
	r.Use(locale)
	r.Use(mw.LoadUser(logger, cfg.Session.CookieName, svc.sessions, svc.people))
	r.Use(stronghold)

	healthH := handlers.NewHealthHandler(logger, svc.checks...)
	dinoH := handlers.NewDinoParkHandler(logger, svc.dinopark)
	profileH := handlers.NewProfileHandler(logger, svc.people)
	oidcH := handlers.NewOIDCHandler(logger, svc.provider, svc.verifier, svc.states, svc.sessions, svc.people, handlers.OIDCOptions{
		CookieName:       cfg.Session.CookieName,
		CookieSecure:     cfg.Session.Secure,
		CookieHTTPOnly:   cfg.Session.HTTPOnly,
		SessionTTL:       cfg.Session.TTL,
		LoginURL:         cfg.Site.LoginURL,
		LoginRedirectURL: cfg.Site.LoginRedirectURL,
		StoreAccessToken: cfg.OIDC.StoreAccessToken,
	})

	r.GET("/health", healthH.Health)
	public.Allow("/health")

	for _, l := range localeHomes(cfg.L10n) {
		r.GET("/"+l+"/", handlers.Home)
		public.Allow("/" + l + "/")
	}

	r.GET("/oidc/authenticate/", oidcH.Authenticate)
	r.GET("/oidc/callback/", oidcH.Callback)
	r.POST("/oidc/logout/", oidcH.Logout)
	public.Allow("/oidc/authenticate/")
	public.Allow("/oidc/callback/")

	// DinoPark
	r.GET("/beta/", mw.NeverCache(), mw.LoginRequired(cfg.Site.LoginURL), dinoH.Main)

	api := r.Group("/api")
	api.Use(mw.RateLimit(logger, svc.limiter, cfg.Security.RateLimitRPS))

	v4 := api.Group("/v4", mw.NeverCache())
	v4.GET("/orgchart/", dinoH.Orgchart)
	v4.GET("/orgchart/related/:user_id", dinoH.OrgchartRelated)
	v4.GET("/search/simple/:query", dinoH.SearchSimple)
	v4.GET("/search/get/:user_id", dinoH.SearchProfile)
	public.Allow("/api/v4/orgchart/")
	public.Allow("/api/v4/orgchart/related/:user_id")
	public.Allow("/api/v4/search/simple/:query")
	public.Allow("/api/v4/search/get/:user_id")

	v2 := api.Group("/v2", mw.LoginRequired(cfg.Site.LoginURL))
	v2.GET("/me", profileH.Me)
	v2.POST("/users/:username/vouch", profileH.Vouch)

	return r, nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", mw.HeaderRequestID},
		ExposeHeaders:    []string{mw.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}
	c.AllowOrigins = origins
	return c
}

// localeHomes lists every configured locale once, default first.
func localeHomes(cfg config.L10n) []string {
	var out []string
	for _, l := range append([]string{cfg.LanguageCode}, cfg.Languages...) {
		if l != "" && !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}
