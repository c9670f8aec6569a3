// Package config loads the application configuration from environment variables only.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration (env-only).
type Config struct {
	Dev   bool
	Debug bool

	Server     Server
	Site       Site
	Postgres   Postgres
	Redis      Redis
	Session    Session
	Security   Security
	CSP        CSP
	L10n       L10n
	OIDC       OIDC
	DinoPark   DinoPark
	Vouching   Vouching
	Stronghold Stronghold
}

// Server holds listener and timeout settings of the HTTP server.
type Server struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Site describes the public identity of the deployment.
type Site struct {
	Domain           string
	Protocol         string
	SiteURL          string
	AllowedHosts     []string
	SecretKey        string
	LoginURL         string
	LoginRedirectURL string
	CORSOrigins      []string
	// TrustedProxies may set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string
}

// Postgres holds the DSN and pool limits.
type Postgres struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// Redis backs sessions, OIDC state and rate limiting.
type Redis struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Session struct {
	CookieName string
	HTTPOnly   bool
	Secure     bool
	TTL        time.Duration
}

// Security mirrors the security middleware knobs plus the API rate limit.
type Security struct {
	HSTSSeconds           int
	HSTSIncludeSubdomains bool
	HSTSPreload           bool
	ContentTypeNosniff    bool
	BrowserXSSFilter      bool
	ReferrerHeader        bool
	XFrameOptions         string
	RateLimitRPS          int
}

// CSP lists the Content-Security-Policy sources per directive.
type CSP struct {
	ReportOnly   bool
	ReportEnable bool
	ReportURI    string
	DefaultSrc   []string
	FontSrc      []string
	ImgSrc       []string
	ScriptSrc    []string
	StyleSrc     []string
	ChildSrc     []string
}

// L10n configures locale-prefixed URLs.
type L10n struct {
	LanguageCode        string
	Languages           []string
	SupportedNonLocales []string
	ExemptURLs          []string
}

// OIDC holds the relying party credentials and provider endpoints.
type OIDC struct {
	ClientID              string
	ClientSecret          string
	ClientSecretEncoded   bool
	OPDomain              string
	AuthorizationEndpoint string
	TokenEndpoint         string
	UserEndpoint          string
	StoreAccessToken      bool
	CallbackURL           string
}

// DinoPark points at the internal orgchart and search services (host:port).
type DinoPark struct {
	OrgchartSvc string
	SearchSvc   string
	Timeout     time.Duration
}

// UsernameColumnWidth is the width of profiles.username in the schema.
const UsernameColumnWidth = 30

// Vouching limits, see profiles.Service.Vouch.
type Vouching struct {
	CountLimit        int
	CanVouchThreshold int
	AutoVouchDomains  []string
	AutoVouchReason   string
	UsernameMaxLength int
}

// Stronghold lists path patterns that never require a login.
type Stronghold struct {
	Exceptions []string
}

var prodLanguages = []string{
	"ca", "cs", "de", "en-US", "en-GB", "es", "hu", "fr", "it", "ko",
	"nl", "pl", "pt-BR", "pt-PT", "ro", "ru", "sk", "sl", "sq", "sr",
	"sv-SE", "te", "zh-TW", "zh-CN", "lt", "ja", "hsb", "dsb", "uk", "kab",
	"fy-NL",
}

// LoadFromEnv reads the config; SECRET_KEY, DATABASE_URL and both DinoPark services are required.
func LoadFromEnv() (Config, error) {
	dev := getBool("DEV", false)
	domain := getEnv("DOMAIN", "mozillians.org")
	siteURL := getEnv("SITE_URL", "https://mozillians.org")
	oidcDomain := getEnv("OIDC_OP_DOMAIN", "auth.mozilla.auth0.com")

	cfg := Config{
		Dev:   dev,
		Debug: getBool("DEBUG", false),
		Server: Server{
			Addr:            getEnv("HTTP_ADDR", ":"+getEnv("PORT", "8000")),
			ReadTimeout:     getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Site: Site{
			Domain:           domain,
			Protocol:         getEnv("PROTOCOL", "https://"),
			SiteURL:          strings.TrimRight(siteURL, "/"),
			AllowedHosts:     getCSV("ALLOWED_HOSTS", []string{domain}),
			SecretKey:        getEnv("SECRET_KEY", ""),
			LoginURL:         getEnv("LOGIN_URL", "/"),
			LoginRedirectURL: getEnv("LOGIN_REDIRECT_URL", "/login/"),
			CORSOrigins:      getCSV("CORS_ALLOWED_ORIGINS", []string{siteURL}),
			TrustedProxies:   getCSV("TRUSTED_PROXIES", nil),
		},
		Postgres: Postgres{
			DSN:             getEnv("DATABASE_URL", ""),
			MaxConns:        int32(getInt("DATABASE_MAX_CONNS", 20)),
			MinConns:        int32(getInt("DATABASE_MIN_CONNS", 2)),
			MaxConnLifetime: getDuration("DATABASE_MAX_CONN_LIFETIME", time.Hour),
			MaxConnIdleTime: getDuration("DATABASE_MAX_CONN_IDLE_TIME", 30*time.Minute),
			ConnectTimeout:  getDuration("DATABASE_CONNECT_TIMEOUT", 5*time.Second),
		},
		Redis: Redis{
			Addr:         getEnv("CACHE_URL", "127.0.0.1:6379"),
			Password:     getEnv("CACHE_PASSWORD", ""),
			DB:           getInt("CACHE_DB", 0),
			PoolSize:     getInt("CACHE_POOL_SIZE", 10),
			DialTimeout:  getDuration("CACHE_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("CACHE_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("CACHE_WRITE_TIMEOUT", 3*time.Second),
		},
		Session: Session{
			CookieName: getEnv("SESSION_COOKIE_NAME", "mozillians_sessionid"),
			HTTPOnly:   getBool("SESSION_COOKIE_HTTPONLY", true),
			Secure:     getBool("SESSION_COOKIE_SECURE", true),
			TTL:        getDuration("SESSION_TTL", 14*24*time.Hour),
		},
		Security: Security{
			HSTSSeconds:           getInt("SECURE_HSTS_SECONDS", 31536000),
			HSTSIncludeSubdomains: getBool("SECURE_HSTS_INCLUDE_SUBDOMAINS", true),
			HSTSPreload:           getBool("ENABLE_HSTS_PRELOAD", true),
			ContentTypeNosniff:    getBool("SECURE_CONTENT_TYPE_NOSNIFF", true),
			BrowserXSSFilter:      getBool("SECURE_BROWSER_XSS_FILTER", true),
			ReferrerHeader:        getBool("ENABLE_REFERRER_HEADER", true),
			XFrameOptions:         getEnv("X_FRAME_OPTIONS", "DENY"),
			RateLimitRPS:          getInt("RATE_LIMIT_RPS", 50),
		},
		CSP: defaultCSP(dev),
		L10n: L10n{
			LanguageCode: getEnv("LANGUAGE_CODE", "en-US"),
			Languages:    getCSV("LANGUAGES", prodLanguages),
			SupportedNonLocales: []string{
				"media", "static", "admin", "csp", "api", "contribute.json",
				"autocomplete", "humans.txt", "oidc", "health", "beta",
			},
			ExemptURLs: []string{
				"^/oidc/authenticate/",
				"^/oidc/callback/",
				"^/api/v1/",
				"^/api/v2/",
				"^/admin/",
			},
		},
		OIDC: OIDC{
			ClientID:              getEnv("OIDC_RP_CLIENT_ID", ""),
			ClientSecret:          getEnv("OIDC_RP_CLIENT_SECRET", ""),
			ClientSecretEncoded:   getBool("OIDC_RP_CLIENT_SECRET_ENCODED", true),
			OPDomain:              oidcDomain,
			AuthorizationEndpoint: getEnv("OIDC_OP_AUTHORIZATION_ENDPOINT", "https://"+oidcDomain+"/authorize"),
			TokenEndpoint:         getEnv("OIDC_OP_TOKEN_ENDPOINT", "https://"+oidcDomain+"/oauth/token"),
			UserEndpoint:          getEnv("OIDC_OP_USER_ENDPOINT", "https://"+oidcDomain+"/userinfo"),
			StoreAccessToken:      getBool("OIDC_STORE_ACCESS_TOKEN", true),
			CallbackURL:           getEnv("OIDC_CALLBACK_URL", strings.TrimRight(siteURL, "/")+"/oidc/callback/"),
		},
		DinoPark: DinoPark{
			OrgchartSvc: getEnv("DINO_PARK_ORGCHART_SVC", ""),
			SearchSvc:   getEnv("DINO_PARK_SEARCH_SVC", ""),
			Timeout:     getDuration("DINO_PARK_TIMEOUT", 10*time.Second),
		},
		Vouching: Vouching{
			CountLimit:        getInt("VOUCH_COUNT_LIMIT", 6),
			CanVouchThreshold: getInt("CAN_VOUCH_THRESHOLD", 3),
			AutoVouchDomains: getCSV("AUTO_VOUCH_DOMAINS", []string{
				"mozilla.com", "mozilla.org", "mozillafoundation.org", "getpocket.com",
			}),
			AutoVouchReason:   "An automatic vouch for being a Mozilla employee.",
			UsernameMaxLength: getInt("USERNAME_MAX_LENGTH", 30),
		},
		Stronghold: Stronghold{
			Exceptions: []string{
				"^/media/",
				"^/csp/",
				"^/admin/",
				"^/api/",
				"^/oidc/authenticate/",
				"^/oidc/callback/",
				"^/health$",
				`^/[\w-]+/skills-autocomplete/`,
				`^/[\w-]+/country-autocomplete/`,
				`^/[\w-]+/city-autocomplete/`,
				`^/[\w-]+/region-autocomplete/`,
				`^/[\w-]+/timezone-autocomplete/`,
			},
		},
	}

	if cfg.Site.SecretKey == "" {
		return Config{}, fmt.Errorf("SECRET_KEY is required")
	}
	if cfg.Postgres.DSN == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.DinoPark.OrgchartSvc == "" {
		return Config{}, fmt.Errorf("DINO_PARK_ORGCHART_SVC is required")
	}
	if cfg.DinoPark.SearchSvc == "" {
		return Config{}, fmt.Errorf("DINO_PARK_SEARCH_SVC is required")
	}
	if n := cfg.Vouching.UsernameMaxLength; n < 1 || n > UsernameColumnWidth {
		return Config{}, fmt.Errorf("USERNAME_MAX_LENGTH must be between 1 and %d, got %d", UsernameColumnWidth, n)
	}
	return cfg, nil
}

// SigningSecret returns the key used to verify HS256 id tokens.
// Auth0 legacy clients hand out the secret base64url-encoded.
func (o OIDC) SigningSecret() ([]byte, error) {
	if !o.ClientSecretEncoded {
		return []byte(o.ClientSecret), nil
	}
	s := strings.TrimRight(o.ClientSecret, "=")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode OIDC_RP_CLIENT_SECRET: %w", err)
	}
	return b, nil
}

func defaultCSP(dev bool) CSP {
	c := CSP{
		ReportOnly:   getBool("CSP_REPORT_ONLY", false),
		ReportEnable: getBool("CSP_REPORT_ENABLE", true),
		ReportURI:    getEnv("CSP_REPORT_URI", "/en-US/capture-csp-violation"),
		DefaultSrc: []string{
			"'self'",
			"https://cdn.mozillians.org",
			"https://www.google.com/recaptcha/",
			"https://www.gstatic.com/recaptcha/",
		},
		FontSrc: []string{
			"'self'",
			"https://*.mozilla.net",
			"https://*.mozilla.org",
			"https://cdn.mozillians.org",
			"https://cdn-staging.mozillians.org",
			"https://mozorg.cdn.mozilla.net",
		},
		ImgSrc: []string{
			"'self'",
			"data:",
			"https://*.mozilla.net",
			"https://*.mozilla.org",
			"*.google-analytics.com",
			"*.gravatar.com",
			"*.wp.com",
			"https://*.mozillians.org",
		},
		ScriptSrc: []string{
			"'self'",
			"https://cdn.mozillians.org",
			"https://cdn-staging.mozillians.org",
			"https://www.mozilla.org",
			"https://*.mozilla.net",
			"https://*.google-analytics.com",
			"https://www.google.com/recaptcha/",
			"https://www.gstatic.com/recaptcha/",
		},
		StyleSrc: []string{
			"'self'",
			"'unsafe-inline'",
			"https://cdn.mozillians.org",
			"https://cdn-staging.mozillians.org",
			"https://www.mozilla.org",
			"https://*.mozilla.net",
		},
		ChildSrc: []string{
			"'self'",
			"https://www.google.com/recaptcha/",
		},
	}
	if dev {
		c.FontSrc = append(c.FontSrc, "http://*.mozilla.net", "http://*.mozilla.org", "http://mozorg.cdn.mozilla.net")
		c.ImgSrc = append(c.ImgSrc, "http://*.mozilla.net", "http://*.mozilla.org")
		c.ScriptSrc = append(c.ScriptSrc, "http://*.mozilla.net", "http://*.mozilla.org")
		c.StyleSrc = append(c.StyleSrc, "http://*.mozilla.net", "http://*.mozilla.org")
	}
	return c
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// getBool parses 1/true/yes and 0/false/no; anything else falls back to def.
func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

// getDuration accepts Go durations ("15s") and bare integers as seconds.
func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// getCSV splits a comma separated value, dropping blanks.
func getCSV(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
