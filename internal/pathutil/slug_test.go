package pathutil

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my-blog", "my-blog"},
		{"  My-Blog  ", "my-blog"},
		{"café", "cafe"},
		{"Ångström-2", "angstrom-2"},
		{"a", "a"},
		{"0", "0"},
		{strings.Repeat("a", 63), strings.Repeat("a", 63)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeSlug(tt.in)
			if err != nil {
				t.Fatalf("NormalizeSlug(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeSlug_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"   ",
		"my_blog",
		"-blog",
		"blog-",
		"my--blog",
		"my blog",
		"blog/evil",
		strings.Repeat("a", 64),
	} {
		t.Run(in, func(t *testing.T) {
			if _, err := NormalizeSlug(in); !errors.Is(err, ErrInvalidSlug) {
				t.Fatalf("NormalizeSlug(%q) err = %v, want ErrInvalidSlug", in, err)
			}
		})
	}
}

func TestNormalizeSlug_Idempotent(t *testing.T) {
	for _, in := range []string{"My-Blog", "café-2024", "  x  ", "ÉCOLE"} {
		once, err := NormalizeSlug(in)
		if err != nil {
			t.Fatalf("NormalizeSlug(%q): %v", in, err)
		}
		twice, err := NormalizeSlug(once)
		if err != nil || twice != once {
			t.Fatalf("NormalizeSlug(%q) = %q, then %q (%v)", in, once, twice, err)
		}
	}
}

func TestSlugFromName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Blog", "my-blog"},
		{"Café & Bar!!", "cafe-bar"},
		{"  --Hello__World--  ", "hello-world"},
		{"日本", ""},
		{strings.Repeat("ab ", 40), strings.TrimRight(strings.Repeat("ab-", 21), "-")},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := SlugFromName(tt.in)
			if got != tt.want {
				t.Fatalf("SlugFromName(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if got != "" {
				if _, err := NormalizeSlug(got); err != nil {
					t.Fatalf("SlugFromName(%q) = %q is not a valid slug", tt.in, got)
				}
			}
		})
	}
}
