package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wppcrm/internal/conversation"
	"github.com/matheus3301/wppcrm/internal/store"
	"github.com/matheus3301/wppcrm/internal/tui/ui"
)

// ConversationList is the main conversation list view.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	convs   []conversation.Conversation
	records map[string]store.Conversation
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Conversations ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "Conversations" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "/", Description: "Filter"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
		{Key: "q", Description: "Quit"},
		{Key: "1-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the list. convs is already filtered; records supply CRM state per
// contact key and may be nil.
func (cl *ConversationList) Update(convs []conversation.Conversation, records map[string]store.Conversation, filter string) {
	cl.convs = convs
	cl.records = records
	cl.filter = filter
	cl.render()
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
		{" STATUS", 0},
		{" AGENT", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	for i, c := range cl.convs {
		row := i + 1
		status, agent := "-", "-"
		if rec, ok := cl.records[c.ContactKey]; ok {
			status = rec.Status
			if rec.AssignedTo != "" {
				agent = rec.AssignedTo
			}
			if rec.BotEnabled {
				status += " bot"
			}
		}
		cl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(c.DisplayName))).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview(c.LastMessage)))).SetExpansion(2).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(c.LastMessageTime).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
		cl.SetCell(row, 3, tview.NewTableCell(" "+status).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 4, tview.NewTableCell(" "+tview.Escape(agent)).SetTextColor(cl.theme.FgColor))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) filter: %s ", len(cl.convs), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(cl.convs)))
	}
}

// SelectedKey returns the contact key under the cursor.
func (cl *ConversationList) SelectedKey() string {
	row, _ := cl.GetSelection()
	return cl.KeyByIndex(row)
}

// KeyByIndex returns the contact key of the Nth visible conversation (1-based).
func (cl *ConversationList) KeyByIndex(n int) string {
	if n < 1 || n > len(cl.convs) {
		return ""
	}
	return cl.convs[n-1].ContactKey
}

// preview keeps the first line of a message for the list column.
func preview(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i] + " …"
		}
	}
	return text
}
