package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Crumbs is the breadcrumb bar under the header.
type Crumbs struct {
	*tview.TextView
	theme *Theme
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the page stack. labels, keyed by page name, replace the page name in the
// trail, so the thread crumb can carry the contact's name.
func (c *Crumbs) Update(stack []string, labels map[string]string) {
	c.Clear()

	var b strings.Builder
	for i, name := range stack {
		label := strings.ToLower(name)
		if l := labels[name]; l != "" {
			label = l
		}
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(stack)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		if i > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "[%s:%s:%s] %s [-:-:-]", colorName(fg), colorName(bg), attr, tview.Escape(label))
	}
	_, _ = fmt.Fprint(c, b.String())
}

// colorName returns a tview-compatible color name string.
func colorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
