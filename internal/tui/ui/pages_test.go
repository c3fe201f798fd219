package ui

import (
	"slices"
	"testing"

	"github.com/rivo/tview"
)

func newTestPages(names ...string) *Pages {
	p := NewPages()
	for _, n := range names {
		p.AddPage(n, tview.NewBox(), true, false)
	}
	return p
}

func TestPagesStack(t *testing.T) {
	p := newTestPages("list", "thread", "details", "search")
	var changes [][]string
	p.SetOnChange(func(s []string) { changes = append(changes, s) })

	p.Reset("list")
	p.Push("thread")
	p.Push("details")
	if got := p.Stack(); !slices.Equal(got, []string{"list", "thread", "details"}) {
		t.Fatalf("stack = %v", got)
	}

	p.Push("thread")
	if got := p.Stack(); !slices.Equal(got, []string{"list", "details", "thread"}) {
		t.Errorf("re-push stack = %v", got)
	}

	p.Swap("search")
	if got := p.Current(); got != "search" || p.Depth() != 3 {
		t.Errorf("after swap current = %q depth = %d", got, p.Depth())
	}

	if got := p.Pop(); got != "search" {
		t.Errorf("Pop = %q", got)
	}
	p.Pop()
	if got := p.Pop(); got != "" || p.Current() != "list" {
		t.Errorf("popping the last page: got %q, current %q", got, p.Current())
	}
	if len(changes) != 7 {
		t.Errorf("onChange fired %d times, want 7", len(changes))
	}
	if front, _ := p.GetFrontPage(); front != "list" {
		t.Errorf("front page = %q", front)
	}
}
