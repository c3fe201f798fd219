package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Instance      string
	User          string
	Driver        string
	State         string
	Conversations int
	Messages      int64
	Uptime        time.Duration
	Offline       bool
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fgColor := colorName(si.theme.FgColor)
	counterColor := colorName(si.theme.CounterColor)

	state := data.State
	stateColor := counterColor
	switch {
	case data.Offline:
		state = "OFFLINE"
		stateColor = colorName(si.theme.FlashErrColor)
	case state != "CONNECTED":
		stateColor = colorName(si.theme.FlashWarnColor)
	}

	user := data.User
	if user == "" {
		user = "-"
	}

	text := fmt.Sprintf(
		"[%s::b]Instance:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]     [%s]%s[-]\n"+
			"[%s::b]Gateway:[-:-:-]  [%s]%s[-] [%s]%s[-]\n"+
			"[%s::b]Convs:[-:-:-]    [%s]%d[-]\n"+
			"[%s::b]Msgs:[-:-:-]     [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]   [%s]%s[-]",
		fgColor, counterColor, tview.Escape(data.Instance),
		fgColor, counterColor, tview.Escape(user),
		fgColor, counterColor, data.Driver, stateColor, state,
		fgColor, counterColor, data.Conversations,
		fgColor, counterColor, data.Messages,
		fgColor, counterColor, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(si, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
