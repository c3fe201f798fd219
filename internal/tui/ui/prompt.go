package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode indicates what the prompt input is for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	PromptNote
)

// Prompt is the single-line input bar for commands, filters and notes.
type Prompt struct {
	*tview.InputField
	theme    *Theme
	mode     PromptMode
	history  map[PromptMode][]string
	cursor   int
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// historySize bounds the recalled entries per mode.
const historySize = 50

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{
		InputField: input,
		theme:      theme,
		history:    make(map[PromptMode][]string),
	}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := p.GetText()
			p.SetText("")
			if text == "" {
				return
			}
			p.remember(text)
			if p.onSubmit != nil {
				p.onSubmit(p.mode, text)
			}
		case tcell.KeyEscape:
			p.SetText("")
			if p.onCancel != nil {
				p.onCancel()
			}
		}
	})

	input.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Key() {
		case tcell.KeyUp:
			p.recall(-1)
			return nil
		case tcell.KeyDown:
			p.recall(1)
			return nil
		}
		return ev
	})

	return p
}

func (p *Prompt) remember(text string) {
	h := p.history[p.mode]
	if len(h) > 0 && h[len(h)-1] == text {
		return
	}
	h = append(h, text)
	if len(h) > historySize {
		h = h[len(h)-historySize:]
	}
	p.history[p.mode] = h
}

// recall walks the history of the current mode. Walking past the newest entry clears the input.
func (p *Prompt) recall(delta int) {
	h := p.history[p.mode]
	if len(h) == 0 {
		return
	}
	p.cursor = min(max(p.cursor+delta, 0), len(h))
	if p.cursor == len(h) {
		p.SetText("")
		return
	}
	p.SetText(h[p.cursor])
}

// SetOnSubmit sets the callback when the prompt is submitted.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback when the prompt is cancelled.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate shows the prompt in the specified mode.
func (p *Prompt) Activate(mode PromptMode) {
	p.mode = mode
	p.cursor = len(p.history[mode])
	p.SetText("")
	switch mode {
	case PromptCommand:
		p.SetLabel(":")
		p.SetTitle(" Command ")
	case PromptFilter:
		p.SetLabel("/")
		p.SetTitle(" Filter ")
	case PromptNote:
		p.SetLabel("note> ")
		p.SetTitle(" Internal note ")
	}
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
