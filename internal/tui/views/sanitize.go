package views

import (
	"strings"
	"unicode"
)

// sanitizeForTerminal drops code points that tcell renders badly or that would let message
// text steer the terminal: control characters other than newline and tab, emoji modifiers
// and joiners, and variation selectors. A skin-toned thumbs-up renders as the plain one.
func sanitizeForTerminal(s string) string {
	return strings.Map(func(r rune) rune {
		if dropRune(r) {
			return -1
		}
		return r
	}, s)
}

func dropRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tones
		return true
	case r == 0x200D: // zero width joiner
		return true
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF: // variation selectors
		return true
	}
	return false
}
