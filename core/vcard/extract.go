package vcard

import (
	"regexp"
	"strings"
)

// UnknownName is assigned to contacts whose card or line carries no usable name.
const UnknownName = "Unknown"

var (
	phoneRe     = regexp.MustCompile(`\+?\d{7,15}`)
	nonDigitRe  = regexp.MustCompile(`\D+`)
	separatorRe = regexp.MustCompile(`[,|:\t]`)
)

// Contact is a single named phone entry.
type Contact struct {
	Name  string
	Phone string
}

// NormalizePhone strips every non-digit rune and prepends a single '+'.
func NormalizePhone(raw string) string {
	return "+" + nonDigitRe.ReplaceAllString(raw, "")
}

// validPhone reports whether a normalized phone carries at least one digit.
func validPhone(p string) bool {
	return len(p) > 1
}

// ExtractNumbers returns every phone-like run found in text, normalized and
// deduplicated while keeping first-occurrence order.
func ExtractNumbers(text string) []string {
	matches := phoneRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		n := NormalizePhone(m)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// SplitNamePhone splits "Name,Phone" style input once on the first of
// ',', '|', ':' or tab, falling back to whitespace. ok is false when only
// one part is present.
func SplitNamePhone(text string) (name, phone string, ok bool) {
	parts := splitOnce(strings.TrimSpace(text))
	if len(parts) < 2 {
		return "", "", false
	}
	name = strings.TrimSpace(parts[0])
	if name == "" {
		name = UnknownName
	}
	return name, NormalizePhone(parts[1]), true
}

// ParseNamedLines turns one-contact-per-line text ("Name,Phone" or a bare
// number) into contacts. Lines without digits in the phone part are skipped.
func ParseNamedLines(text string) []Contact {
	var out []Contact
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := splitOnce(line)
		c := Contact{Name: UnknownName}
		if len(parts) == 1 {
			c.Phone = NormalizePhone(parts[0])
		} else {
			if name := strings.TrimSpace(parts[0]); name != "" {
				c.Name = name
			}
			c.Phone = NormalizePhone(parts[1])
		}
		if !validPhone(c.Phone) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func splitOnce(s string) []string {
	if loc := separatorRe.FindStringIndex(s); loc != nil {
		return []string{s[:loc[0]], s[loc[1]:]}
	}
	fields := strings.Fields(s)
	if len(fields) <= 1 {
		return fields
	}
	rest := strings.TrimSpace(strings.TrimPrefix(s, fields[0]))
	return []string{fields[0], rest}
}
