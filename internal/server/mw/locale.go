package mw

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/text/language"

	"mozillians/internal/config"
	"mozillians/internal/server/resp"
)

type localeResolver struct {
	langs      []string
	canonical  map[string]string
	matcher    language.Matcher
	nonLocales map[string]bool
	exempt     []*regexp.Regexp
}

func newLocaleResolver(cfg config.L10n) (*localeResolver, error) {
	r := &localeResolver{
		canonical:  make(map[string]string),
		nonLocales: make(map[string]bool),
	}
	// The default language goes first: the matcher falls back to index 0.
	for _, l := range append([]string{cfg.LanguageCode}, cfg.Languages...) {
		key := strings.ToLower(l)
		if l == "" || r.canonical[key] != "" {
			continue
		}
		r.canonical[key] = l
		r.langs = append(r.langs, l)
	}
	if len(r.langs) == 0 {
		return nil, fmt.Errorf("l10n: no languages configured")
	}
	tags := make([]language.Tag, 0, len(r.langs))
	for _, l := range r.langs {
		t, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("l10n: language %q: %w", l, err)
		}
		tags = append(tags, t)
	}
	r.matcher = language.NewMatcher(tags)

	for _, s := range cfg.SupportedNonLocales {
		r.nonLocales[s] = true
	}
	exempt, err := compilePatterns(cfg.ExemptURLs)
	if err != nil {
		return nil, fmt.Errorf("l10n: %w", err)
	}
	r.exempt = exempt
	return r, nil
}

// negotiate picks the best configured locale for an Accept-Language value.
func (r *localeResolver) negotiate(accept string) string {
	prefs, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(prefs) == 0 {
		return r.langs[0]
	}
	_, idx, conf := r.matcher.Match(prefs...)
	if conf == language.No {
		return r.langs[0]
	}
	return r.langs[idx]
}

// LocaleURL redirects unprefixed page URLs to /<locale>/... and records the
// request locale under resp.CtxLocale.
func LocaleURL(cfg config.L10n) (gin.HandlerFunc, error) {
	r, err := newLocaleResolver(cfg)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		first, rest := splitFirstSegment(path)

		if canon, ok := r.canonical[strings.ToLower(first)]; ok {
			if canon != first {
				redirect(c, "/"+canon+rest)
				return
			}
			c.Set(resp.CtxLocale, canon)
			c.Next()
			return
		}

		locale := r.negotiate(c.GetHeader("Accept-Language"))
		if r.nonLocales[first] || matchAny(r.exempt, path) {
			c.Set(resp.CtxLocale, locale)
			c.Next()
			return
		}
		redirect(c, "/"+locale+path)
	}, nil
}

func redirect(c *gin.Context, target string) {
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

// splitFirstSegment splits "/en-US/beta/" into "en-US" and "/beta/".
func splitFirstSegment(path string) (string, string) {
	p := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i], p[i:]
	}
	return p, ""
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
