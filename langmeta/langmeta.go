// Package langmeta provides language display metadata (native names and
// emoji flags) and canonical lproj folder names for the CLI.
package langmeta

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Base is the lproj folder holding development-language interface files.
const Base = "Base"

// Meta describes language display metadata.
type Meta struct {
	// Code is the canonical lproj name ("pt-BR").
	Code string
	Name string
	Flag string
}

// legacy maps the English folder names older Xcode projects use
// ("English.lproj") to language codes.
var legacy = map[string]string{
	"english":    "en",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"japanese":   "ja",
	"spanish":    "es",
	"dutch":      "nl",
	"portuguese": "pt",
}

// Canonical returns the lproj name Xcode uses for a language code:
// "pt_br" becomes "pt-BR", "zh_hans" becomes "zh-Hans", "English" becomes
// "en". Codes that do not parse are returned trimmed.
func Canonical(lang string) string {
	lang = strings.TrimSpace(lang)
	if strings.EqualFold(lang, Base) {
		return Base
	}
	if code, ok := legacy[strings.ToLower(lang)]; ok {
		return code
	}
	tag, err := language.Parse(strings.ReplaceAll(lang, "_", "-"))
	if err != nil {
		return lang
	}
	return tag.String()
}

// Valid reports whether lang is Base or a well-formed language code.
func Valid(lang string) bool {
	if Canonical(lang) == Base {
		return true
	}
	_, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(lang), "_", "-"))
	return err == nil
}

// Resolve returns best-effort metadata for a language code. Unknown codes
// pass through with the code as name and no flag.
func Resolve(lang string) Meta {
	code := Canonical(lang)
	if code == Base {
		return Meta{Code: Base, Name: Base}
	}
	tag, err := language.Parse(code)
	if err != nil {
		return Meta{Code: lang, Name: lang}
	}

	m := Meta{Code: code, Name: display.Self.Name(tag)}
	if m.Name == "" {
		m.Name = code
	}
	if region, conf := tag.Region(); conf != language.No {
		m.Flag = flag(region.String())
	}
	return m
}

// Label formats a language for listings: "🇩🇪 Deutsch (de)".
func Label(lang string) string {
	m := Resolve(lang)
	if m.Name == m.Code {
		return strings.TrimSpace(m.Flag + " " + m.Code)
	}
	return strings.TrimSpace(m.Flag + " " + m.Name + " (" + m.Code + ")")
}

// flag converts a two-letter region code to its regional indicator pair.
func flag(region string) string {
	if len(region) != 2 {
		return ""
	}
	var b strings.Builder
	for _, c := range region {
		if c < 'A' || c > 'Z' {
			return ""
		}
		b.WriteRune(0x1F1E6 + (c - 'A'))
	}
	return b.String()
}
