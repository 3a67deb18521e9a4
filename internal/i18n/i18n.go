// Package i18n holds the localized message catalogue and the lookup used by
// every user-facing component.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"golang.org/x/text/language"
)

// DefaultLocale is used when a user's locale is unknown or unsupported.
const DefaultLocale = "en"

//go:embed locales/*.json
var localeFS embed.FS

// Params fills {name} placeholders in a catalogue entry.
type Params map[string]any

var (
	supported  = []language.Tag{language.English, language.Persian}
	locales    = []string{"en", "fa"}
	matcher    = language.NewMatcher(supported)
	catalogues = mustLoad()
)

func mustLoad() map[string]map[string]string {
	out := make(map[string]map[string]string, len(locales))
	for _, loc := range locales {
		raw, err := localeFS.ReadFile(path.Join("locales", loc+".json"))
		if err != nil {
			panic(fmt.Sprintf("i18n: missing catalogue %s: %v", loc, err))
		}
		entries := make(map[string]string)
		if err := json.Unmarshal(raw, &entries); err != nil {
			panic(fmt.Sprintf("i18n: malformed catalogue %s: %v", loc, err))
		}
		out[loc] = entries
	}
	return out
}

// Locales returns the supported locale codes.
func Locales() []string {
	return append([]string(nil), locales...)
}

// IsSupported reports whether locale has its own catalogue.
func IsSupported(locale string) bool {
	_, ok := catalogues[locale]
	return ok
}

// Normalize maps a client language code such as "fa-IR" or "en-US" onto a
// supported locale, falling back to DefaultLocale.
func Normalize(code string) string {
	if code == "" {
		return DefaultLocale
	}
	tag, err := language.Parse(code)
	if err != nil {
		return DefaultLocale
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return DefaultLocale
	}
	return locales[idx]
}

// Translate looks key up in locale, then in DefaultLocale, and finally
// returns the key itself.
func Translate(key, locale string, params Params) string {
	msg, ok := catalogues[locale][key]
	if !ok {
		msg, ok = catalogues[DefaultLocale][key]
	}
	if !ok {
		return key
	}
	for name, value := range params {
		msg = strings.ReplaceAll(msg, "{"+name+"}", fmt.Sprint(value))
	}
	return msg
}

// T is Translate without parameters.
func T(key, locale string) string {
	return Translate(key, locale, nil)
}
