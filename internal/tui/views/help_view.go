package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/matheus3301/wppcrm/internal/tui/ui"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := colorHex(hv.theme.MenuKeyColor)

	sections := []struct {
		title string
		rows  [][2]string
	}{
		{"Global Keys", [][2]string{
			{":", "Command mode"}, {"/", "Filter conversations"}, {"?", "Help"},
			{"Ctrl-R", "Refresh now"}, {"Esc", "Cancel / Go back"}, {"q", "Quit (on the list)"},
		}},
		{"Conversation List", [][2]string{
			{"Enter", "Open conversation"}, {"1-9", "Jump to Nth conversation"}, {"j/k", "Move down / up"},
		}},
		{"Message Thread", [][2]string{
			{"i", "Focus composer"}, {"Enter", "Send message (in composer)"}, {"d", "Conversation details"},
			{"b", "Toggle bot"}, {"a", "Assign to me"}, {"n", "Add a note"},
		}},
		{"Commands (: mode)", [][2]string{
			{":search <query>", "Search messages"}, {":chat <name|phone>", "Open a conversation"},
			{":bot [on|off]", "Automated responder"}, {":assign [email]", "Assign (default: you)"},
			{":release", "Clear the assignee"}, {":status open|pending|closed", "Set status"},
			{":tags a,b", "Replace tags"}, {":note <text>", "Add an internal note"},
			{":pair", "Pair the gateway device (admin)"}, {":refresh", "Refresh now"},
			{":logout", "Logout and quit"}, {":quit", "Quit"},
		}},
	}

	for _, sec := range sections {
		_, _ = fmt.Fprintf(hv, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, r := range sec.rows {
			_, _ = fmt.Fprintf(hv, "  [%s]%-30s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
}
