package ui

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/rivo/tview"
)

// Logo is the header wordmark. Its last line shows the push channel state.
type Logo struct {
	*tview.TextView
	theme *Theme
	state status.State
}

func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignRight)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 0, 1)

	l := &Logo{TextView: tv, theme: theme, state: status.Booting}
	l.render()
	return l
}

// SetState redraws the link line. Unchanged states are ignored.
func (l *Logo) SetState(s status.State) {
	if s == l.state {
		return
	}
	l.state = s
	l.render()
}

func (l *Logo) render() {
	mark := ColorName(l.theme.TitleColor)
	link := ColorName(l.linkColor())
	label := strings.ToLower(strings.ReplaceAll(string(l.state), "_", " "))

	l.Clear()
	_, _ = fmt.Fprintf(l,
		"[%s::b]┏━╸╻ ╻┏━┓╺┳╸[-:-:-]\n"+
			"[%s::b]┃  ┣━┫┣━┫ ┃ [-:-:-]\n"+
			"[%s::b]┗━╸╹ ╹╹ ╹ ╹ [-:-:-]\n"+
			"[%s]%s %s[-:-:-]",
		mark, mark, mark, link, linkGlyph(l.state), label,
	)
}

func (l *Logo) linkColor() tcell.Color {
	switch l.state {
	case status.Ready:
		return l.theme.OnlineColor
	case status.LoggedOut, status.Error:
		return l.theme.FlashErrColor
	default:
		return l.theme.PendingColor
	}
}

func linkGlyph(s status.State) string {
	switch s {
	case status.Ready:
		return "●"
	case status.Reconnecting:
		return "◌"
	case status.LoggedOut, status.Error:
		return "✕"
	default:
		return "○"
	}
}
