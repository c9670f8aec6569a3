package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mozillians/internal/access"
	"mozillians/internal/config"
	"mozillians/internal/oidc"
	"mozillians/internal/profiles"
	"mozillians/internal/security"
	"mozillians/internal/server/handlers"
	"mozillians/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

type memSessions map[string]*store.Session

func (m memSessions) Get(_ context.Context, token string) (*store.Session, error) {
	if s, ok := m[token]; ok {
		return s, nil
	}
	return nil, store.ErrSessionNotFound
}

func (m memSessions) Create(_ context.Context, id uuid.UUID, at string) (string, error) {
	m["new"] = &store.Session{ProfileID: id, AccessToken: at}
	return "new", nil
}

func (m memSessions) Destroy(_ context.Context, token string) error {
	delete(m, token)
	return nil
}

type memPeople map[uuid.UUID]*profiles.Profile

func (m memPeople) Get(_ context.Context, id uuid.UUID) (*profiles.Profile, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, profiles.ErrNotFound
}

func (m memPeople) FindOrCreate(context.Context, string, string) (*profiles.Profile, bool, error) {
	return nil, false, profiles.ErrNotFound
}

func (m memPeople) Vouch(_ context.Context, _ *profiles.Profile, username, _ string) (*profiles.Profile, error) {
	return &profiles.Profile{Username: username}, nil
}

type echoDinoPark struct{ calls int }

func (e *echoDinoPark) Orgchart(context.Context) (json.RawMessage, error) {
	e.calls++
	return json.RawMessage(`{"forrest":[]}`), nil
}

func (e *echoDinoPark) OrgchartRelated(context.Context, string) (json.RawMessage, error) {
	e.calls++
	return json.RawMessage(`{"manager":null}`), nil
}

func (e *echoDinoPark) SearchSimple(_ context.Context, scope access.Level, q string) (json.RawMessage, error) {
	e.calls++
	return json.RawMessage(`{"scope":"` + scope.String() + `","q":"` + q + `"}`), nil
}

func (e *echoDinoPark) SearchProfile(_ context.Context, scope access.Level, id string) (json.RawMessage, error) {
	e.calls++
	return json.RawMessage(`{"scope":"` + scope.String() + `","id":"` + id + `"}`), nil
}

type nopProvider struct{}

func (nopProvider) AuthURL(state, nonce string) string {
	return "https://idp.example/authorize?state=" + state
}
func (nopProvider) Exchange(context.Context, string) (oidc.Tokens, error) { return oidc.Tokens{}, nil }
func (nopProvider) UserInfo(context.Context, string) (oidc.UserInfo, error) {
	return oidc.UserInfo{}, nil
}

type nopVerifier struct{}

func (nopVerifier) Verify(string, string) (*security.IDClaims, error) {
	return nil, security.ErrNonceMismatch
}

type memStates struct{}

func (memStates) Begin(context.Context, string) (string, store.AuthState, error) {
	return "s", store.AuthState{Nonce: "n"}, nil
}
func (memStates) Consume(context.Context, string) (store.AuthState, error) {
	return store.AuthState{}, store.ErrStateNotFound
}

type countingLimiter struct{ hits map[string]int64 }

func (l *countingLimiter) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	l.hits[key]++
	return l.hits[key], nil
}

type testApp struct {
	engine   *gin.Engine
	dinopark *echoDinoPark
	staffSID string
	userSID  string
	staff    *profiles.Profile
}

func newTestApp(t *testing.T, env map[string]string) *testApp {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/mozillians")
	t.Setenv("DINO_PARK_ORGCHART_SVC", "orgchart:80")
	t.Setenv("DINO_PARK_SEARCH_SVC", "search:80")
	t.Setenv("ALLOWED_HOSTS", "example.com")
	t.Setenv("SESSION_COOKIE_NAME", "sid")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	staff := &profiles.Profile{ID: uuid.New(), Username: "boss", IsStaff: true, IsVouched: true}
	user := &profiles.Profile{ID: uuid.New(), Username: "volunteer", IsVouched: true}
	app := &testApp{dinopark: &echoDinoPark{}, staffSID: "staff-sid", userSID: "user-sid", staff: staff}

	svc := services{
		sessions: memSessions{
			app.staffSID: {ProfileID: staff.ID},
			app.userSID:  {ProfileID: user.ID},
		},
		states:   memStates{},
		people:   memPeople{staff.ID: staff, user.ID: user},
		dinopark: app.dinopark,
		provider: nopProvider{},
		verifier: nopVerifier{},
		limiter:  &countingLimiter{hits: map[string]int64{}},
		checks:   []handlers.Check{{Name: "noop", Ping: func(context.Context) error { return nil }}},
	}
	app.engine, err = newEngine(cfg, svc, zap.NewNop())
	if err != nil {
		t.Fatalf("newEngine: %v", err)
	}
	return app
}

func (a *testApp) do(method, path, sid string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if sid != "" {
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func TestRouter_OrgchartGate(t *testing.T) {
	app := newTestApp(t, nil)

	for _, sid := range []string{"", app.userSID} {
		w := app.do(http.MethodGet, "/api/v4/orgchart/", sid)
		if w.Code != http.StatusForbidden {
			t.Errorf("sid %q: code = %d, want 403", sid, w.Code)
		}
	}
	if app.dinopark.calls != 0 {
		t.Fatalf("upstream called %d times for forbidden requests", app.dinopark.calls)
	}

	w := app.do(http.MethodGet, "/api/v4/orgchart/", app.staffSID)
	if w.Code != http.StatusOK || w.Body.String() != `{"forrest":[]}` {
		t.Fatalf("code = %d body = %q", w.Code, w.Body.String())
	}
	h := w.Header()
	if !strings.Contains(h.Get("Cache-Control"), "no-cache") {
		t.Errorf("Cache-Control = %q", h.Get("Cache-Control"))
	}
	if h.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if h.Get("Strict-Transport-Security") == "" || h.Get("Content-Security-Policy") == "" {
		t.Errorf("security headers missing: %v", h)
	}
}

func TestRouter_SearchScopes(t *testing.T) {
	app := newTestApp(t, nil)
	tests := []struct {
		path, sid, want string
	}{
		{"/api/v4/search/simple/jane", "", `{"scope":"public","q":"jane"}`},
		{"/api/v4/search/simple/jane", app.userSID, `{"scope":"vouched","q":"jane"}`},
		{"/api/v4/search/simple/jane", app.staffSID, `{"scope":"staff","q":"jane"}`},
		{"/api/v4/search/get/boss", app.staffSID, `{"scope":"staff","id":"boss"}`},
		{"/api/v4/search/get/boss", app.userSID, `{"scope":"vouched","id":"boss"}`},
	}
	for _, tt := range tests {
		w := app.do(http.MethodGet, tt.path, tt.sid)
		if w.Code != http.StatusOK || w.Body.String() != tt.want {
			t.Errorf("%s as %q: code = %d body = %s, want %s", tt.path, tt.sid, w.Code, w.Body.String(), tt.want)
		}
	}
}

func TestRouter_Pages(t *testing.T) {
	app := newTestApp(t, nil)

	w := app.do(http.MethodGet, "/", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/en-US/" {
		t.Errorf("/: code = %d Location = %q", w.Code, w.Header().Get("Location"))
	}

	w = app.do(http.MethodGet, "/en-US/", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "/oidc/authenticate/") {
		t.Errorf("home: code = %d", w.Code)
	}

	w = app.do(http.MethodGet, "/beta/", "")
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/?next=%2Fbeta%2F" {
		t.Errorf("beta anonymous: code = %d Location = %q", w.Code, w.Header().Get("Location"))
	}

	w = app.do(http.MethodGet, "/beta/", app.userSID)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `data-username="volunteer"`) {
		t.Errorf("beta: code = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Header().Get("Cache-Control"), "no-store") {
		t.Error("beta page must not be cached")
	}

	w = app.do(http.MethodGet, "/en-US/groups/", "")
	if w.Code != http.StatusFound || !strings.HasPrefix(w.Header().Get("Location"), "/?next=") {
		t.Errorf("stronghold: code = %d Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestRouter_ProfileAPI(t *testing.T) {
	app := newTestApp(t, nil)

	if w := app.do(http.MethodGet, "/api/v2/me", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous /me: code = %d", w.Code)
	}
	w := app.do(http.MethodGet, "/api/v2/me", app.staffSID)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"username":"boss"`) {
		t.Errorf("/me: code = %d body = %s", w.Code, w.Body.String())
	}
}

func TestRouter_HostsHealthAndLogout(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Host = "evil.example"
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad host: code = %d", w.Code)
	}

	if w := app.do(http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health: code = %d", w.Code)
	}

	w = app.do(http.MethodPost, "/oidc/logout/", app.userSID)
	if w.Code != http.StatusFound || w.Header().Get("Location") != "/" {
		t.Errorf("logout: code = %d Location = %q", w.Code, w.Header().Get("Location"))
	}
	if w := app.do(http.MethodGet, "/api/v2/me", app.userSID); w.Code != http.StatusUnauthorized {
		t.Errorf("session survived logout: code = %d", w.Code)
	}
}

func TestRouter_CORSPreflight(t *testing.T) {
	app := newTestApp(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v4/search/simple/x", nil)
	req.Header.Set("Origin", "https://mozillians.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	app.engine.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("code = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://mozillians.org" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_RateLimit(t *testing.T) {
	app := newTestApp(t, map[string]string{"RATE_LIMIT_RPS": "2"})
	codes := []int{}
	for range 3 {
		codes = append(codes, app.do(http.MethodGet, "/api/v4/search/simple/x", "").Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
	if w := app.do(http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("rate limit applied outside /api: %d", w.Code)
	}
}

func TestRouter_RateLimitIgnoresForwardedFor(t *testing.T) {
	app := newTestApp(t, map[string]string{"RATE_LIMIT_RPS": "2"})
	codes := []int{}
	for i := range 4 {
		req := httptest.NewRequest(http.MethodGet, "/api/v4/search/simple/x", nil)
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		w := httptest.NewRecorder()
		app.engine.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[2] != http.StatusTooManyRequests || codes[3] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, spoofed X-Forwarded-For reset the counter", codes)
	}
}

func TestRouter_RateLimitBehindTrustedProxy(t *testing.T) {
	// httptest requests come from 192.0.2.1.
	app := newTestApp(t, map[string]string{"RATE_LIMIT_RPS": "1", "TRUSTED_PROXIES": "192.0.2.0/24"})
	for i, ip := range []string{"203.0.113.1", "203.0.113.2", "203.0.113.1"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v4/search/simple/x", nil)
		req.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		app.engine.ServeHTTP(w, req)
		want := http.StatusOK
		if i == 2 {
			want = http.StatusTooManyRequests
		}
		if w.Code != want {
			t.Errorf("request %d from %s: code = %d, want %d", i, ip, w.Code, want)
		}
	}
}

func TestNewEngine_BadTrustedProxy(t *testing.T) {
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("DATABASE_URL", "postgres://localhost/mozillians")
	t.Setenv("DINO_PARK_ORGCHART_SVC", "orgchart:80")
	t.Setenv("DINO_PARK_SEARCH_SVC", "search:80")
	t.Setenv("TRUSTED_PROXIES", "not-an-ip")
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := newEngine(cfg, services{}, zap.NewNop()); err == nil {
		t.Error("expected error for invalid TRUSTED_PROXIES")
	}
}

func TestLocaleHomes(t *testing.T) {
	got := localeHomes(config.L10n{LanguageCode: "en-US", Languages: []string{"de", "en-US", "fr"}})
	want := []string{"en-US", "de", "fr"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("localeHomes = %v", got)
	}
}
