// Package remote is the client side of the chat server: a JSON HTTP client
// for the request/response API and a websocket client for the push channel.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/suggest"
)

// HeaderUserID is the identity header understood by the server.
const HeaderUserID = "X-User-ID"

// DefaultTimeout bounds every request.
const DefaultTimeout = 15 * time.Second

// Error is every failure of a request, normalized. Status is 0 when no
// response was received.
type Error struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "request failed: " + e.Message
	}
	return fmt.Sprintf("request failed (%d): %s", e.Status, e.Message)
}

func statusOf(err error) int {
	var re *Error
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// IsUnauthenticated reports whether the server rejected the identity.
func IsUnauthenticated(err error) bool { return statusOf(err) == http.StatusUnauthorized }

// IsQuotaExceeded reports whether the reply suggestion quota is used up.
func IsQuotaExceeded(err error) bool { return statusOf(err) == http.StatusTooManyRequests }

// IsNotFound reports whether a referenced resource no longer exists.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

// Conversation is the result of a conversation lookup.
type Conversation struct {
	Conversation chat.Conversation `json:"conversation"`
	SelectedUser chat.User         `json:"selectedUser"`
	Created      bool              `json:"created"`
}

// Client calls the chat HTTP API as one user.
type Client struct {
	base   *url.URL
	userID string
	http   *http.Client
}

// NewClient returns a client for the server at baseURL acting as userID. A
// non-positive timeout means DefaultTimeout.
func NewClient(baseURL, userID string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("parse server url: unsupported scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{base: u, userID: userID, http: &http.Client{Timeout: timeout}}, nil
}

// UserID returns the identity the client acts as.
func (c *Client) UserID() string { return c.userID }

// BaseURL returns the server address.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Sidebar lists every other user with their conversation summary.
func (c *Client) Sidebar(ctx context.Context) ([]chat.SidebarEntry, error) {
	var out []chat.SidebarEntry
	if err := c.do(ctx, http.MethodGet, "/api/users", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation gets or lazily creates the conversation with partnerID.
func (c *Client) Conversation(ctx context.Context, partnerID string) (Conversation, error) {
	var out Conversation
	err := c.do(ctx, http.MethodGet, "/api/conversation/"+url.PathEscape(partnerID), nil, nil, &out)
	return out, err
}

// History fetches one page of a conversation, oldest first.
func (c *Client) History(ctx context.Context, conversationID string, page, limit int) (history.Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	var out history.Page
	err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(conversationID), q, nil, &out)
	return out, err
}

// Send persists a message to receiverID and returns the stored copy.
func (c *Client) Send(ctx context.Context, receiverID string, d chat.Draft) (chat.Message, error) {
	var out struct {
		NewMessage chat.Message `json:"newMessage"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/messages/send/"+url.PathEscape(receiverID), nil, d, &out); err != nil {
		return chat.Message{}, err
	}
	return out.NewMessage, nil
}

// GenerateReplies asks for reply suggestions to messageID.
func (c *Client) GenerateReplies(ctx context.Context, conversationID, messageID string) (suggest.Replies, error) {
	body := map[string]string{"conversationId": conversationID, "selectedMessageId": messageID}
	var out suggest.Replies
	err := c.do(ctx, http.MethodPost, "/api/messages/generate-reply", nil, body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return &Error{Message: "encode request: " + err.Error()}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	req.Header.Set(HeaderUserID, c.userID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return &Error{Message: "read response: " + err.Error(), Status: resp.StatusCode}
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		// The body may claim a different status than the transport.
		apiErr.Status = resp.StatusCode
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Message: "decode response: " + err.Error(), Status: resp.StatusCode}
	}
	return nil
}
