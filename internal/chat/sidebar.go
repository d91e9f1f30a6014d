package chat

import (
	"slices"
	"time"
)

// ImagePlaceholder is the summary shown for messages without text.
const ImagePlaceholder = "[Image]"

// LastMessage summarizes the newest message of a conversation.
type LastMessage struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SidebarEntry is one contact row: the contact, the conversation with them
// if one exists, and its last message.
type SidebarEntry struct {
	User
	ConversationID string       `json:"conversationId,omitempty"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
}

// Summarize builds the sidebar summary for m.
func Summarize(m Message) LastMessage {
	content := m.Text
	if content == "" {
		content = ImagePlaceholder
	}
	return LastMessage{Content: content, SenderID: m.SenderID, CreatedAt: m.CreatedAt}
}

// SortSidebar returns entries ordered by last message time, newest first.
// Contacts without a conversation keep their relative order at the end.
func SortSidebar(entries []SidebarEntry) []SidebarEntry {
	out := slices.Clone(entries)
	slices.SortStableFunc(out, func(a, b SidebarEntry) int {
		switch {
		case a.LastMessage == nil && b.LastMessage == nil:
			return 0
		case a.LastMessage == nil:
			return 1
		case b.LastMessage == nil:
			return -1
		}
		return b.LastMessage.CreatedAt.Compare(a.LastMessage.CreatedAt)
	})
	return out
}

// ApplyMessage records m as the last message of the contact it was
// exchanged with, as seen by self, and re-sorts. Unknown contacts leave the
// sidebar unchanged.
func ApplyMessage(entries []SidebarEntry, m Message, self string) []SidebarEntry {
	partner := m.ReceiverID
	if m.SenderID != self {
		partner = m.SenderID
	}
	i := slices.IndexFunc(entries, func(e SidebarEntry) bool { return e.ID == partner })
	if i < 0 {
		return entries
	}
	out := slices.Clone(entries)
	lm := Summarize(m)
	out[i].LastMessage = &lm
	if m.ConversationID != "" {
		out[i].ConversationID = m.ConversationID
	}
	return SortSidebar(out)
}

// ApplyConversation attaches a newly created conversation to the partner's
// entry.
func ApplyConversation(entries []SidebarEntry, partnerID, conversationID string) []SidebarEntry {
	i := slices.IndexFunc(entries, func(e SidebarEntry) bool { return e.ID == partnerID })
	if i < 0 || entries[i].ConversationID == conversationID {
		return entries
	}
	out := slices.Clone(entries)
	out[i].ConversationID = conversationID
	return out
}
