package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/wppcrm/internal/conversation"
	"github.com/matheus3301/wppcrm/internal/store"
	"github.com/matheus3301/wppcrm/internal/tui/ui"
)

// ConversationInfo displays the CRM record and notes of a conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders conv with its record. rec is nil until the contact's first saved message.
func (ci *ConversationInfo) Update(conv conversation.Conversation, rec *store.Conversation, notes []store.Note) {
	ci.Clear()

	fg := colorHex(ci.theme.FgColor)
	ct := colorHex(ci.theme.CounterColor)
	field := func(label, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(ci, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, label+":", ct, tview.Escape(sanitizeForTerminal(value)))
	}

	_, _ = fmt.Fprint(ci, "\n")
	field("Name", conv.DisplayName)
	field("Phone", conv.ContactKey)
	field("Messages", fmt.Sprint(len(conv.Messages)))
	field("Last Active", conv.LastMessageTime)
	if rec != nil {
		bot := "off"
		if rec.BotEnabled {
			bot = "on"
		}
		field("Status", rec.Status)
		field("Bot", bot)
		field("Assigned To", rec.AssignedTo)
		field("Tags", strings.Join(rec.Tags, ", "))
	} else {
		field("Status", "no record yet")
	}

	if len(notes) > 0 {
		_, _ = fmt.Fprintf(ci, "\n [%s::b]Notes[-:-:-]\n", fg)
		for _, n := range notes {
			_, _ = fmt.Fprintf(ci, " [::d]%s %s[-:-:-] %s\n",
				n.CreatedAt.Format("02/01 15:04"), tview.Escape(n.Author), tview.Escape(sanitizeForTerminal(n.Text)))
		}
	}
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(sanitizeForTerminal(conv.DisplayName))))
}

func colorHex(c interface{ Hex() int32 }) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
