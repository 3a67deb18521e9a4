package i18n

import (
	"testing"
)

func TestTranslateFillsParams(t *testing.T) {
	got := Translate("set_timezone", "en", Params{"timezone": "Asia/Tehran"})
	want := "Timezone set to Asia/Tehran. ⏰"
	if got != want {
		t.Errorf("Translate() = %q, want %q", got, want)
	}
}

func TestTranslateFallbacks(t *testing.T) {
	if got := T("onboard_continue", "fa"); got != "بزن بریم" {
		t.Errorf("fa onboard_continue = %q", got)
	}
	if got, want := T("onboard_continue", "de"), T("onboard_continue", "en"); got != want {
		t.Errorf("unsupported locale = %q, want english %q", got, want)
	}
	if got := T("no_such_key", "en"); got != "no_such_key" {
		t.Errorf("missing key = %q, want the key itself", got)
	}
}

func TestCataloguesHaveSameKeys(t *testing.T) {
	for key := range catalogues[DefaultLocale] {
		for _, loc := range locales {
			if _, ok := catalogues[loc][key]; !ok {
				t.Errorf("locale %s is missing key %q", loc, key)
			}
		}
	}
	for _, loc := range locales {
		for key := range catalogues[loc] {
			if _, ok := catalogues[DefaultLocale][key]; !ok {
				t.Errorf("locale %s has key %q unknown to %s", loc, key, DefaultLocale)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"":      "en",
		"en":    "en",
		"en-US": "en",
		"fa":    "fa",
		"fa-IR": "fa",
		"de":    "en",
		"??":    "en",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}
