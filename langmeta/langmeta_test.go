package langmeta

import "testing"

func TestCanonical(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "pt_br", want: "pt-BR"},
		{in: " EN-us ", want: "en-US"},
		{in: "zh_hans", want: "zh-Hans"},
		{in: "ru", want: "ru"},
		{in: "base", want: "Base"},
		{in: "English", want: "en"},
		{in: "", want: ""},
		{in: "not a language!", want: "not a language!"},
	}

	for _, tc := range cases {
		if got := Canonical(tc.in); got != tc.want {
			t.Fatalf("Canonical(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValid(t *testing.T) {
	for _, lang := range []string{"Base", "en", "pt-BR", "zh-Hant", "sr-Latn"} {
		if !Valid(lang) {
			t.Errorf("Valid(%q) = false", lang)
		}
	}
	for _, lang := range []string{"", "en-", "x y"} {
		if Valid(lang) {
			t.Errorf("Valid(%q) = true", lang)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("native name", func(t *testing.T) {
		got := Resolve("de")
		if got.Name != "Deutsch" || got.Flag != "🇩🇪" || got.Code != "de" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized code", func(t *testing.T) {
		got := Resolve("ja_jp")
		if got.Code != "ja-JP" || got.Flag != "🇯🇵" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("base", func(t *testing.T) {
		got := Resolve("Base")
		if got.Name != "Base" || got.Flag != "" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("unparseable passthrough", func(t *testing.T) {
		got := Resolve("??")
		if got.Name != "??" || got.Flag != "" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})
}

func TestLabel(t *testing.T) {
	if got := Label("de"); got != "🇩🇪 Deutsch (de)" {
		t.Fatalf("Label(de) = %q", got)
	}
	if got := Label("Base"); got != "Base" {
		t.Fatalf("Label(Base) = %q", got)
	}
}

func TestFlag(t *testing.T) {
	if got := flag("FR"); got != "🇫🇷" {
		t.Fatalf("flag(FR) = %q", got)
	}
	if got := flag("419"); got != "" {
		t.Fatalf("flag(419) = %q, want empty", got)
	}
}
