package i18n

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Catalog stores locale-key translations in memory. It is built once at
// startup and only read afterwards.
type Catalog struct {
	defaultLocale string
	messages      map[string]map[string]string
}

// NewCatalog creates an empty translation catalog.
func NewCatalog(defaultLocale string) *Catalog {
	return &Catalog{
		defaultLocale: normalizeLocale(defaultLocale),
		messages:      map[string]map[string]string{},
	}
}

// NewCatalogFromMessages builds a catalog from a lang → reason → text map,
// the shape of the messages configuration section.
func NewCatalogFromMessages(defaultLocale string, messages map[string]map[string]string) *Catalog {
	c := NewCatalog(defaultLocale)
	for locale, entries := range messages {
		c.Add(locale, entries)
	}
	return c
}

// Add inserts translations for a locale.
func (c *Catalog) Add(locale string, entries map[string]string) {
	locale = normalizeLocale(locale)
	if locale == "" {
		return
	}
	if c.messages[locale] == nil {
		c.messages[locale] = map[string]string{}
	}
	for key, value := range entries {
		if strings.TrimSpace(key) == "" {
			continue
		}
		c.messages[locale][key] = value
	}
}

// Locales returns the locales with at least one entry, sorted.
func (c *Catalog) Locales() []string {
	out := make([]string, 0, len(c.messages))
	for locale := range c.messages {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out
}

func (c *Catalog) DefaultLocale() string {
	return c.defaultLocale
}

// ForLocale returns a locale-bound translator.
func (c *Catalog) ForLocale(locale string) Translator {
	return localizedTranslator{
		catalog: c,
		locale:  normalizeLocale(locale),
	}
}

type localizedTranslator struct {
	catalog *Catalog
	locale  string
}

// T returns the template for key in the bound locale, its base locale or
// the default locale, with {name} placeholders filled from args. An unknown
// key translates to itself.
func (t localizedTranslator) T(key string, args ...interface{}) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if t.catalog == nil {
		return key
	}

	template := t.catalog.lookup(t.locale, key)
	if template == "" {
		return key
	}
	return applyTemplateParams(template, parseTemplateArgs(args...))
}

func (c *Catalog) lookup(locale, key string) string {
	for _, candidate := range []string{locale, baseLocale(locale), c.defaultLocale} {
		if entries := c.messages[candidate]; entries != nil {
			if value, ok := entries[key]; ok {
				return value
			}
		}
	}
	return ""
}

func parseTemplateArgs(args ...interface{}) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	if len(args) == 1 {
		switch v := args[0].(type) {
		case map[string]interface{}:
			return v
		case Params:
			return v
		}
	}

	params := map[string]interface{}{}
	for idx := 0; idx+1 < len(args); idx += 2 {
		key, ok := args[idx].(string)
		if !ok {
			continue
		}
		params[key] = args[idx+1]
	}
	return params
}

func applyTemplateParams(template string, params map[string]interface{}) string {
	if len(params) == 0 {
		return template
	}
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := template
	for _, key := range keys {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprint(params[key]))
	}
	return out
}

var localeCleaner = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

// NormalizeLocale lowercases locale and turns underscores into dashes.
func NormalizeLocale(locale string) string {
	return normalizeLocale(locale)
}

func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(strings.ReplaceAll(locale, "_", "-"))
	locale = localeCleaner.ReplaceAllString(locale, "")
	return strings.ToLower(locale)
}

// BaseLocale strips the region: "it-ch" becomes "it".
func BaseLocale(locale string) string {
	return baseLocale(locale)
}

func baseLocale(locale string) string {
	locale = normalizeLocale(locale)
	if idx := strings.Index(locale, "-"); idx > 0 {
		return locale[:idx]
	}
	return locale
}
