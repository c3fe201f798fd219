package views

import (
	"fmt"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/matheus3301/wppcrm/internal/tui/ui"
)

// AuthView shows the gateway pairing QR code while the daemon waits for a device link.
type AuthView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Gateway Pairing ")
	tv.SetTitleColor(theme.TitleColor)

	return &AuthView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (av *AuthView) Name() string { return "Pairing" }

// Hints implements Component.
func (av *AuthView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "p", Description: "Pair"},
		{Key: "Esc", Description: "Back"},
	}
}

// ShowQR renders a pairing code. Codes rotate, so the caller re-renders on every new one.
func (av *AuthView) ShowQR(content string) {
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n  Scan with WhatsApp > Linked devices:\n\n%s\n  [::d]The code refreshes by itself. Waiting for the scan...[-:-:-]", renderQR(content))
}

// ShowMessage displays a status message.
func (av *AuthView) ShowMessage(msg string) {
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", tview.Escape(msg))
}

// renderQR draws content with half-block characters, two modules per cell row.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	return qr.ToSmallString(false)
}
