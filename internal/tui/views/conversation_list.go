package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/chatsync/internal/chat"
	intsync "github.com/matheus3301/chatsync/internal/sync"
	"github.com/matheus3301/chatsync/internal/tui/model"
	"github.com/matheus3301/chatsync/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationList is the contact sidebar: every contact, newest
// conversation first, with presence and the last message.
type ConversationList struct {
	*tview.Table
	theme   *ui.Theme
	view    intsync.View
	visible []chat.SidebarEntry
	filter  string
}

// NewConversationList creates a new conversation list table.
func NewConversationList(theme *ui.Theme) *ConversationList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Contacts ")
	table.SetTitleColor(theme.TitleColor)

	return &ConversationList{
		Table: table,
		theme: theme,
	}
}

// Name implements Component.
func (cl *ConversationList) Name() string { return "contacts" }

// Hints implements Component.
func (cl *ConversationList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "1-9", Description: "Jump"},
	}
}

// Update refreshes the list, keeping the selected contact selected.
func (cl *ConversationList) Update(v intsync.View) {
	selected := cl.SelectedContact()
	cl.view = v
	cl.render()
	cl.selectContact(selected)
}

// SetFilter sets the active filter text and re-renders.
func (cl *ConversationList) SetFilter(filter string) {
	cl.filter = strings.TrimSpace(filter)
	cl.render()
}

// Filter returns the active filter.
func (cl *ConversationList) Filter() string {
	return cl.filter
}

func (cl *ConversationList) matches(e chat.SidebarEntry) bool {
	if cl.filter == "" {
		return true
	}
	q := strings.ToLower(cl.filter)
	if strings.Contains(strings.ToLower(e.FullName), q) || strings.Contains(strings.ToLower(e.ID), q) {
		return true
	}
	return e.LastMessage != nil && strings.Contains(strings.ToLower(e.LastMessage.Content), q)
}

func (cl *ConversationList) render() {
	cl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" ", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 2},
		{" TIME", 0},
	}
	for col, h := range headers {
		cell := tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(cl.theme.TableHeaderFg).
			SetBackgroundColor(cl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp)
		cl.SetCell(0, col, cell)
	}

	cl.visible = cl.visible[:0]
	for _, e := range cl.view.Sidebar {
		if !cl.matches(e) {
			continue
		}
		cl.visible = append(cl.visible, e)
		row := len(cl.visible)

		dot, dotColor := "○", cl.theme.OfflineColor
		if cl.view.IsOnline(e.ID) {
			dot, dotColor = "●", cl.theme.OnlineColor
		}
		name := oneLine(model.DisplayName(e.User))
		if e.ID == cl.view.Partner.ID && cl.view.Conversation != "" {
			name = "» " + name
		}

		preview, when := "", ""
		if lm := e.LastMessage; lm != nil {
			preview = oneLine(lm.Content)
			if lm.SenderID == cl.view.Self {
				preview = "You: " + preview
			}
			when = formatTimestamp(lm.CreatedAt)
		}

		cl.SetCell(row, 0, tview.NewTableCell(" "+dot).SetTextColor(dotColor))
		cl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(name)).SetExpansion(1).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(preview)).SetExpansion(2).SetMaxWidth(60).SetTextColor(cl.theme.FgColor))
		cl.SetCell(row, 3, tview.NewTableCell(when).SetTextColor(cl.theme.FgColor).SetAlign(tview.AlignRight))
	}

	if cl.filter != "" {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d/%d) filter: %s ", len(cl.visible), len(cl.view.Sidebar), tview.Escape(cl.filter)))
	} else {
		cl.SetTitle(fmt.Sprintf(" Contacts (%d) ", len(cl.view.Sidebar)))
	}
}

// SelectedContact returns the id of the selected contact.
func (cl *ConversationList) SelectedContact() string {
	row, _ := cl.GetSelection()
	return cl.ContactByIndex(row)
}

// ContactByIndex returns the id of the Nth visible contact (1-based).
func (cl *ConversationList) ContactByIndex(n int) string {
	if n < 1 || n > len(cl.visible) {
		return ""
	}
	return cl.visible[n-1].ID
}

func (cl *ConversationList) selectContact(id string) {
	for i, e := range cl.visible {
		if e.ID == id {
			cl.Select(i+1, 0)
			return
		}
	}
	if len(cl.visible) > 0 {
		cl.Select(1, 0)
	}
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.Local()
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}
