package scoring

import (
	"strings"
	"unicode"
)

const (
	// DefaultTitle is used when nothing printable is left of the first line.
	DefaultTitle = "Vacancy"

	maxTitleRunes = 255

	titlePunctuation = `.,:;!?()[]-+#/&|'"%`
	trailingCutset   = " :;-,.|/"
	// A sentence separator opens a new capitalisation window when followed by a space.
	sentenceSeparators = ".!?:;|-"
)

// ExtractTitle derives a display title from the first line of a vacancy text.
func ExtractTitle(text string) string {
	line, _, _ := strings.Cut(text, "\n")

	runes := []rune(line)
	if len(runes) > maxTitleRunes {
		runes = runes[:maxTitleRunes]
	}

	var b strings.Builder
	for _, r := range runes {
		if allowedInTitle(r) {
			b.WriteRune(r)
		}
	}

	title := strings.Join(strings.Fields(b.String()), " ")
	title = strings.TrimRight(title, trailingCutset)
	title = capitalize(title)

	if title == "" {
		return DefaultTitle
	}
	return title
}

func allowedInTitle(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsDigit(r) ||
		unicode.IsSpace(r) || r == '_' || strings.ContainsRune(titlePunctuation, r)
}

func capitalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	open := true
	var prev rune
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			if open {
				r = unicode.ToUpper(r)
			}
			open = false
		case unicode.IsDigit(r):
			open = false
		case r == '(':
			open = true
		case unicode.IsSpace(r) && strings.ContainsRune(sentenceSeparators, prev):
			open = true
		}
		b.WriteRune(r)
		prev = r
	}

	return b.String()
}
