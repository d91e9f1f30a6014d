package ui

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Command     bool // a ':' command rather than a key, displayed in a different color
}

// Component is a page of the app: it names itself for the breadcrumbs and
// lists its shortcuts for the menu.
type Component interface {
	Name() string
	Hints() []MenuHint
}
