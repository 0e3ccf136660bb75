package pathutil

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidSlug is returned by NormalizeSlug.
var ErrInvalidSlug = errors.New("invalid slug")

// MaxSlugLen fits a DNS label.
const MaxSlugLen = 63

var slugRe = regexp.MustCompile(`^[a-z0-9](-?[a-z0-9])*$`)

// foldDiacritics decomposes s and drops combining marks, so "Café" becomes "Cafe".
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeSlug canonicalizes a site or profile slug. The result matches
// ^[a-z0-9](-?[a-z0-9])*$ and is at most MaxSlugLen bytes. Normalizing an
// already normalized slug returns it unchanged.
func NormalizeSlug(s string) (string, error) {
	s = strings.ToLower(foldDiacritics(strings.TrimSpace(s)))
	if s == "" || len(s) > MaxSlugLen || !slugRe.MatchString(s) {
		return "", ErrInvalidSlug
	}
	return s, nil
}

// SlugFromName derives a slug from a display name: diacritics are folded,
// every run of other characters becomes one hyphen and the result is cut to
// MaxSlugLen. It returns "" when nothing usable is left.
func SlugFromName(name string) string {
	folded := strings.ToLower(foldDiacritics(name))

	var b strings.Builder
	pendingHyphen := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			if b.Len() >= MaxSlugLen {
				break
			}
			continue
		}
		pendingHyphen = true
	}
	return strings.TrimRight(b.String()[:min(b.Len(), MaxSlugLen)], "-")
}
