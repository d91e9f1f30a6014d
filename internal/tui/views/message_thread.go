package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/chat"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the open conversation and its composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *Composer
	partner  chat.User

	// following keeps the view pinned to the newest message. Scrolling up
	// releases it; End or G takes it back.
	following  bool
	onLoadMore func()
	onVisible  func(messageID string, ratio float64)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	typingLine := tview.NewTextView().SetDynamicColors(true)
	typingLine.SetBackgroundColor(theme.BgColor)
	typingLine.SetTextColor(theme.TypingColor)

	composer := NewComposer(theme)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typingLine, 1, 0, false).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:      flex,
		theme:     theme,
		messages:  messages,
		typing:    typingLine,
		composer:  composer,
		following: true,
	}
	messages.SetInputCapture(mt.handleScroll)
	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string { return "thread" }

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "d", Description: "Details"},
		{Key: "G", Description: "Newest"},
		{Key: "reply", Description: "Suggest", Command: true},
		{Key: "image", Description: "Attach", Command: true},
	}
}

// SetOnLoadMore sets the callback fired when scrolling past the oldest
// loaded message.
func (mt *MessageThread) SetOnLoadMore(fn func()) {
	mt.onLoadMore = fn
}

// SetOnVisible sets the callback fired for the newest message while the
// view follows it.
func (mt *MessageThread) SetOnVisible(fn func(messageID string, ratio float64)) {
	mt.onVisible = fn
}

// Following reports whether the view is pinned to the newest message.
func (mt *MessageThread) Following() bool {
	return mt.following
}

// Follow pins the view to the newest message.
func (mt *MessageThread) Follow() {
	mt.following = true
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) handleScroll(event *tcell.EventKey) *tcell.EventKey {
	switch {
	case event.Key() == tcell.KeyUp, event.Key() == tcell.KeyPgUp, event.Key() == tcell.KeyHome,
		event.Key() == tcell.KeyRune && (event.Rune() == 'k' || event.Rune() == 'g'):
		mt.following = false
		if row, _ := mt.messages.GetScrollOffset(); row == 0 && mt.onLoadMore != nil {
			mt.onLoadMore()
		}
	case event.Key() == tcell.KeyEnd, event.Key() == tcell.KeyRune && event.Rune() == 'G':
		mt.Follow()
		return nil
	}
	return event
}

// Update renders v. While following, the newest persisted message is
// reported as fully visible.
func (mt *MessageThread) Update(v intsync.View) {
	if v.Partner.ID != mt.partner.ID {
		mt.following = true
	}
	mt.partner = v.Partner

	title := " " + tview.Escape(oneLine(model.DisplayName(v.Partner))) + " "
	switch {
	case v.Loading:
		title += "(loading) "
	case v.LoadingMore:
		title += "(loading older) "
	case v.HasMore:
		title += "(more above) "
	}
	mt.messages.SetTitle(title)

	row, col := mt.messages.GetScrollOffset()
	mt.messages.SetText(renderMessages(v, mt.theme))
	if mt.following {
		mt.messages.ScrollToEnd()
	} else {
		mt.messages.ScrollTo(row, col)
	}

	mt.typing.SetText(" " + tview.Escape(model.TypingLine(v)))

	if mt.following && mt.onVisible != nil {
		if id := newestPersisted(v.Messages); id != "" {
			mt.onVisible(id, 1.0)
		}
	}
}

// Composer returns the composer.
func (mt *MessageThread) Composer() *Composer {
	return mt.composer
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

func newestPersisted(msgs []chat.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if !msgs[i].Temporary {
			return msgs[i].ID
		}
	}
	return ""
}

func renderMessages(v intsync.View, theme *ui.Theme) string {
	if len(v.Messages) == 0 {
		if v.Loading {
			return ""
		}
		return "\n [::d]No messages yet. Press i to say hello.[-:-:-]\n"
	}

	self := ui.ColorName(theme.SelfColor)
	partner := ui.ColorName(theme.PartnerColor)
	partnerName := tview.Escape(oneLine(model.DisplayName(v.Partner)))

	var b strings.Builder
	for _, m := range v.Messages {
		sender, color := partnerName, partner
		if m.SenderID == v.Self {
			sender, color = "You", self
		}
		fmt.Fprintf(&b, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]", color, sender, formatTimestamp(m.CreatedAt))
		if m.SenderID == v.Self {
			b.WriteString(" " + statusGlyph(m.Status, theme))
		}
		b.WriteByte('\n')
		if m.Image != "" {
			b.WriteString(imageLine(m.Image) + "\n")
		}
		if m.Text != "" {
			b.WriteString(tview.Escape(sanitizeForTerminal(m.Text)) + "\n")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func imageLine(src string) string {
	line := "[::i]" + chat.ImagePlaceholder
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		line += " " + tview.Escape(oneLine(src))
	}
	return line + "[-:-:-]"
}

// statusGlyph renders the delivery state of an own message.
func statusGlyph(s chat.Status, theme *ui.Theme) string {
	pending := ui.ColorName(theme.PendingColor)
	switch s {
	case chat.StatusSending:
		return "[" + pending + "]…[-]"
	case chat.StatusSent:
		return "[" + pending + "]✓[-]"
	case chat.StatusDelivered:
		return "[" + pending + "]✓✓[-]"
	case chat.StatusSeen:
		return "[" + ui.ColorName(theme.SeenColor) + "]✓✓[-]"
	default:
		return ""
	}
}
