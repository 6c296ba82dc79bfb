package vcard

import (
	"regexp"
	"strings"
)

// Ext is the file extension of card files, compared case-insensitively.
const Ext = ".vcf"

const (
	beginMarker   = "BEGIN:VCARD"
	endMarker     = "END:VCARD"
	versionMarker = "VERSION:3.0"
)

var (
	endRe  = regexp.MustCompile(`(?i)END:VCARD`)
	nameRe = regexp.MustCompile(`(?i)FN:(.+)`)
	telRe  = regexp.MustCompile(`(?i)TEL[^:]*:(.+)`)
)

// IsCardFile reports whether a file name carries the card extension.
func IsCardFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), Ext)
}

// TrimCardExt removes a trailing card extension, if any.
func TrimCardExt(name string) string {
	if IsCardFile(name) {
		trimmed := strings.TrimSpace(name)
		return trimmed[:len(trimmed)-len(Ext)]
	}
	return name
}

// ParseCards reads every card in text. A segment counts as a card only when
// it holds a begin marker; cards without a usable TEL field are dropped.
func ParseCards(text string) []Contact {
	var out []Contact
	for _, block := range endRe.Split(text, -1) {
		if !strings.Contains(strings.ToUpper(block), beginMarker) {
			continue
		}
		tel := telRe.FindStringSubmatch(block)
		if tel == nil {
			continue
		}
		phone := NormalizePhone(strings.TrimSpace(tel[1]))
		if !validPhone(phone) {
			continue
		}
		name := UnknownName
		if m := nameRe.FindStringSubmatch(block); m != nil {
			if n := strings.TrimSpace(m[1]); n != "" {
				name = n
			}
		}
		out = append(out, Contact{Name: name, Phone: phone})
	}
	return out
}

// BuildCards serializes contacts in input order. Phones are written verbatim.
func BuildCards(contacts []Contact) string {
	lines := make([]string, 0, len(contacts)*5)
	for _, c := range contacts {
		lines = append(lines,
			beginMarker,
			versionMarker,
			"FN:"+c.Name,
			"TEL:"+c.Phone,
			endMarker,
		)
	}
	return strings.Join(lines, "\n") + "\n"
}
