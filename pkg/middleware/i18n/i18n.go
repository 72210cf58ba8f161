// Package i18n resolves the request language and installs a translator for
// error messages.
package i18n

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/nimburion/eventsvc/pkg/i18n"
	"github.com/nimburion/eventsvc/pkg/server/router"
)

// LocaleContextKey is the router.Context key holding the resolved locale.
const LocaleContextKey = "locale"

// Config controls locale resolution.
type Config struct {
	// CookieName is checked first; the web client stores the user choice there.
	CookieName string
	// QueryParam overrides Accept-Language when present.
	QueryParam           string
	ExcludedPathPrefixes []string
}

func DefaultConfig() Config {
	return Config{
		CookieName: "lang",
		QueryParam: "lang",
		ExcludedPathPrefixes: []string{
			"/metrics",
			"/health",
			"/version",
		},
	}
}

// Middleware resolves the locale from the cookie, the query parameter and
// then Accept-Language, keeping the first candidate the catalog knows
// (exactly or by base language). Without a match the catalog default is
// used. Locale and translator are stored in the request context.
func Middleware(catalog *i18n.Catalog, cfg Config) router.MiddlewareFunc {
	supported := map[string]struct{}{}
	for _, locale := range catalog.Locales() {
		supported[locale] = struct{}{}
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			for _, prefix := range cfg.ExcludedPathPrefixes {
				if prefix != "" && strings.HasPrefix(req.URL.Path, prefix) {
					return next(c)
				}
			}

			locale := pickLocale(candidates(req, cfg), supported, catalog.DefaultLocale())
			ctx := i18n.WithLocale(req.Context(), locale)
			ctx = i18n.WithTranslator(ctx, catalog.ForLocale(locale))
			c.SetRequest(req.WithContext(ctx))
			c.Set(LocaleContextKey, locale)

			h := c.Response().Header()
			h.Set("Content-Language", locale)
			h.Add("Vary", "Accept-Language")
			if cfg.CookieName != "" {
				h.Add("Vary", "Cookie")
			}
			return next(c)
		}
	}
}

func candidates(r *http.Request, cfg Config) []string {
	var out []string
	if cfg.CookieName != "" {
		if cookie, err := r.Cookie(cfg.CookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			out = append(out, cookie.Value)
		}
	}
	if cfg.QueryParam != "" {
		if value := strings.TrimSpace(r.URL.Query().Get(cfg.QueryParam)); value != "" {
			out = append(out, value)
		}
	}
	return append(out, parseAcceptLanguage(r.Header.Get("Accept-Language"))...)
}

func pickLocale(candidates []string, supported map[string]struct{}, fallback string) string {
	for _, candidate := range candidates {
		norm := i18n.NormalizeLocale(candidate)
		if _, ok := supported[norm]; ok {
			return norm
		}
		if _, ok := supported[i18n.BaseLocale(norm)]; ok {
			return i18n.BaseLocale(norm)
		}
	}
	return fallback
}

type langQ struct {
	lang string
	q    float64
}

// parseAcceptLanguage returns the listed languages by descending quality,
// dropping wildcards and q=0 entries.
func parseAcceptLanguage(raw string) []string {
	parts := strings.Split(raw, ",")
	items := make([]langQ, 0, len(parts))
	for _, part := range parts {
		sections := strings.Split(strings.TrimSpace(part), ";")
		lang := strings.TrimSpace(sections[0])
		if lang == "" || lang == "*" {
			continue
		}
		q := 1.0
		for _, section := range sections[1:] {
			key, value, ok := strings.Cut(strings.TrimSpace(section), "=")
			if !ok || !strings.EqualFold(key, "q") {
				continue
			}
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				q = parsed
			}
		}
		if q <= 0 {
			continue
		}
		items = append(items, langQ{lang: lang, q: q})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].q > items[j].q })
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.lang)
	}
	return out
}
