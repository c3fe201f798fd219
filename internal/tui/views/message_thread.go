package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wppcrm/internal/normalize"
	"github.com/matheus3301/wppcrm/internal/tui/ui"
)

// MessageThread displays messages and a composer for a single conversation.
type MessageThread struct {
	*tview.Flex
	theme      *ui.Theme
	messages   *tview.TextView
	composer   *tview.InputField
	title      string
	contactKey string
	onSend     func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	// The input is only cleared when the send layer says so.
	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			if text := composer.GetText(); text != "" {
				mt.onSend(text)
			}
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "b", Description: "Toggle bot"},
		{Key: "a", Description: "Assign to me"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetConversation updates the title and remembers which contact is shown.
func (mt *MessageThread) SetConversation(key, name string) {
	mt.contactKey = key
	mt.title = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(sanitizeForTerminal(name))))
}

// ContactKey returns the contact key of the shown conversation.
func (mt *MessageThread) ContactKey() string {
	return mt.contactKey
}

// SetOnSend sets the callback when the operator submits a message.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// ClearComposer empties the input after a send that succeeded end to end.
func (mt *MessageThread) ClearComposer() {
	mt.composer.SetText("")
}

// Update renders msgs, which are ascending by timestamp.
func (mt *MessageThread) Update(msgs []normalize.Message) {
	mt.messages.Clear()

	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.formatMessage(m))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) formatMessage(m normalize.Message) string {
	label := senderLabel(m)
	labelColor := colorHex(mt.theme.FgColor)
	switch m.Sender {
	case normalize.SenderAgent:
		labelColor = colorHex(mt.theme.AgentColor)
	case normalize.SenderBot:
		labelColor = colorHex(mt.theme.BotColor)
	}
	mark := ""
	switch {
	case m.Failed:
		mark = fmt.Sprintf(" [%s]failed[-]", colorHex(mt.theme.FailedColor))
	case m.Pending:
		mark = fmt.Sprintf(" [%s]sending…[-]", colorHex(mt.theme.PendingColor))
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
		labelColor, tview.Escape(sanitizeForTerminal(label)), m.DisplayTime, mark,
		tview.Escape(sanitizeForTerminal(m.Text)))
}

func senderLabel(m normalize.Message) string {
	switch m.Sender {
	case normalize.SenderAgent:
		if m.Name != "" {
			return "Agent " + m.Name
		}
		return "Agent"
	case normalize.SenderBot:
		return "Bot"
	default:
		if m.Name != "" {
			return m.Name
		}
		return m.ContactKey
	}
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
