package views

import (
	"fmt"

	"github.com/matheus3301/chatsync/internal/suggest"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ReplyPicker lists reply suggestions; choosing one hands it to onPick.
type ReplyPicker struct {
	*tview.List
	theme   *ui.Theme
	replies suggest.Replies
	onPick  func(text string)
}

// NewReplyPicker creates an empty picker.
func NewReplyPicker(theme *ui.Theme) *ReplyPicker {
	list := tview.NewList().ShowSecondaryText(false)
	list.SetBorder(true)
	list.SetBorderColor(theme.BorderColor)
	list.SetBackgroundColor(theme.BgColor)
	list.SetMainTextColor(theme.FgColor)
	list.SetSelectedTextColor(theme.TableCursorFg)
	list.SetSelectedBackgroundColor(theme.TableCursorBg)
	list.SetShortcutColor(theme.MenuKeyColor)
	list.SetTitle(" Suggested replies ")
	list.SetTitleColor(theme.TitleColor)

	return &ReplyPicker{List: list, theme: theme}
}

// Name implements Component.
func (rp *ReplyPicker) Name() string { return "replies" }

// Hints implements Component.
func (rp *ReplyPicker) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Use"},
		{Key: "1-9", Description: "Pick"},
		{Key: "Esc", Description: "Back"},
	}
}

// SetOnPick sets the callback for a chosen suggestion.
func (rp *ReplyPicker) SetOnPick(fn func(text string)) {
	rp.onPick = fn
}

// Update replaces the listed suggestions.
func (rp *ReplyPicker) Update(r suggest.Replies) {
	rp.replies = r
	rp.Clear()
	for i, text := range r.Options {
		var shortcut rune
		if i < 9 {
			shortcut = rune('1' + i)
		}
		rp.AddItem(tview.Escape(oneLine(text)), "", shortcut, func() {
			if rp.onPick != nil {
				rp.onPick(text)
			}
		})
	}
	rp.SetTitle(fmt.Sprintf(" Suggested replies (%d, %d used) ", len(r.Options), r.Used))
}
