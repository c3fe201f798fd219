package ui

// MenuHint is one shortcut shown in the header menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // digit shortcuts render in their own color
}

// Component is a page the dashboard can push. The header shows its name in the crumbs and
// its hints in the menu.
type Component interface {
	Name() string
	Hints() []MenuHint
}
