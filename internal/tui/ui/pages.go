package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a navigation stack over tview.Pages. Only the top page is visible.
type Pages struct {
	*tview.Pages
	stack    []string
	onChange func(stack []string)
}

// NewPages creates an empty stack.
func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages()}
}

// SetOnChange registers a callback fired after every stack change.
func (p *Pages) SetOnChange(fn func(stack []string)) {
	p.onChange = fn
}

// Push shows name on top of the stack. Pushing a page that is already on the stack moves it
// to the top instead of stacking it twice.
func (p *Pages) Push(name string) {
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	if i := slices.Index(p.stack, name); i >= 0 {
		p.stack = slices.Delete(p.stack, i, i+1)
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Swap replaces the top page with name.
func (p *Pages) Swap(name string) {
	if len(p.stack) == 0 {
		p.Push(name)
		return
	}
	p.HidePage(p.stack[len(p.stack)-1])
	p.stack[len(p.stack)-1] = name
	p.show(name)
}

// Pop removes the top page and returns its name. The last page is never popped.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.stack[len(p.stack)-1]
	p.HidePage(top)
	p.stack = p.stack[:len(p.stack)-1]
	p.show(p.Current())
	return top
}

// Current returns the top page, or "" for an empty stack.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Stack returns a copy of the stack, bottom first.
func (p *Pages) Stack() []string {
	return slices.Clone(p.stack)
}

// Depth returns the stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// Reset clears the stack down to name.
func (p *Pages) Reset(name string) {
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = []string{name}
	p.show(name)
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	if p.onChange != nil {
		p.onChange(p.Stack())
	}
}
