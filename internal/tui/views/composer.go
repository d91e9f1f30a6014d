package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. Every edit is reported
// so the typing indicator can follow it.
type Composer struct {
	*tview.InputField
	onSend   func(text string)
	onChange func(text string)
	onBlur   func()
	onEscape func()
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitle(" Compose (i to focus) ")
	input.SetTitleColor(theme.TitleColor)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			text := c.GetText()
			if strings.TrimSpace(text) == "" || c.onSend == nil {
				return
			}
			c.onSend(text)
			c.SetText("")
		case tcell.KeyEscape:
			if c.onEscape != nil {
				c.onEscape()
			}
		}
	})
	input.SetChangedFunc(func(text string) {
		if c.onChange != nil {
			c.onChange(text)
		}
	})
	input.SetBlurFunc(func() {
		if c.onBlur != nil {
			c.onBlur()
		}
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetOnChange sets the callback fired after every edit.
func (c *Composer) SetOnChange(fn func(text string)) {
	c.onChange = fn
}

// SetOnBlur sets the callback fired when the composer loses focus.
func (c *Composer) SetOnBlur(fn func()) {
	c.onBlur = fn
}

// SetOnEscape sets the callback for Esc inside the composer.
func (c *Composer) SetOnEscape(fn func()) {
	c.onEscape = fn
}
