package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Menu displays keyboard shortcut hints in the header.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates a new menu hint bar.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		TextView: tv,
		theme:    theme,
	}
}

// maxRows is how many hints fit in one column of the header.
const maxRows = 6

// Update renders menu hints in columns of up to maxRows lines.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()

	keyColor := colorName(m.theme.MenuKeyColor)
	numColor := colorName(m.theme.NumericKeyColor)

	cells := make([]string, len(hints))
	width := 0
	for i, h := range hints {
		cells[i] = fmt.Sprintf("<%s> %s", h.Key, h.Description)
		width = max(width, len(cells[i]))
	}

	rows := min(len(hints), maxRows)
	for r := 0; r < rows; r++ {
		for i := r; i < len(hints); i += maxRows {
			kc := keyColor
			if hints[i].Numeric {
				kc = numColor
			}
			pad := strings.Repeat(" ", width-len(cells[i])+2)
			_, _ = fmt.Fprintf(m, "[%s::b]<%s>[-:-:-] %s%s", kc, hints[i].Key, hints[i].Description, pad)
		}
		_, _ = fmt.Fprint(m, "\n")
	}
}
