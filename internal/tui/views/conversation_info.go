package views

import (
	"fmt"
	"strings"

	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays the partner of the open conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Conversation Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "details" }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// Update renders the partner details of v.
func (ci *ConversationInfo) Update(v intsync.View) {
	ci.Clear()
	if v.Partner.ID == "" {
		return
	}

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	presence := "offline"
	switch {
	case v.IsOnline(v.Partner.ID):
		presence = "[" + ui.ColorName(ci.theme.OnlineColor) + "]online[-]"
	case v.Partner.LastSeen != nil:
		presence = "last seen " + v.Partner.LastSeen.Local().Format("2006-01-02 15:04")
	}

	mine, theirs := 0, 0
	for _, m := range v.Messages {
		if m.SenderID == v.Self {
			mine++
		} else {
			theirs++
		}
	}
	loaded := fmt.Sprintf("%d (%d yours, %d theirs)", len(v.Messages), mine, theirs)
	if v.HasMore {
		loaded += ", older pages available"
	}

	conv := v.Conversation
	if conv == "" {
		conv = "-"
	}

	rows := [][2]string{
		{"Name:", tview.Escape(oneLine(model.DisplayName(v.Partner)))},
		{"ID:", tview.Escape(oneLine(v.Partner.ID))},
		{"Email:", tview.Escape(oneLine(v.Partner.Email))},
		{"Presence:", presence},
		{"Conversation:", tview.Escape(conv)},
		{"Loaded:", loaded},
	}
	var b strings.Builder
	b.WriteByte('\n')
	for _, r := range rows {
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, r[0], ct, r[1])
	}
	_, _ = fmt.Fprint(ci, b.String())
	ci.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(oneLine(model.DisplayName(v.Partner)))))
}
