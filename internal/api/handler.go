// Package api is the HTTP surface of the chat server: the history and send
// endpoints plus the websocket upgrade.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/history"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/receipt"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/suggest"
	"go.uber.org/zap"
)

// Push is the part of the hub the handlers use.
type Push interface {
	Notify(ctx context.Context, notices ...receipt.Notice)
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

// Deps groups the collaborators of the handlers.
type Deps struct {
	Store    store.Repository
	History  *history.Service
	Receipts *receipt.Service
	Suggest  *suggest.Service
	Media    media.Store
	Push     Push
	Auth     Authenticator
	Logger   *zap.Logger
}

// Handler serves the HTTP API.
type Handler struct {
	store    store.Repository
	history  *history.Service
	receipts *receipt.Service
	suggest  *suggest.Service
	media    media.Store
	push     Push
	auth     Authenticator
	logger   *zap.Logger
}

func NewHandler(d Deps) *Handler {
	if d.Auth == nil {
		d.Auth = HeaderAuthenticator{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Handler{
		store:    d.Store,
		history:  d.History,
		receipts: d.Receipts,
		suggest:  d.Suggest,
		media:    d.Media,
		push:     d.Push,
		auth:     d.Auth,
		logger:   d.Logger,
	}
}

// RouterOptions configures the gin engine.
type RouterOptions struct {
	AllowedOrigins []string
	MediaDir       string
}

// Router builds the gin engine with every route mounted.
func (h *Handler) Router(opts RouterOptions) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(requestLogger(h.logger), recovery(h.logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderUserID},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(opts.AllowedOrigins) == 0 {
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	} else {
		corsCfg.AllowOrigins = opts.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", h.health)
	if opts.MediaDir != "" {
		r.Static("/media", opts.MediaDir)
	}

	authed := r.Group("/", h.requireUser)
	authed.GET("/ws", h.serveWS)

	apiGroup := authed.Group("/api")
	{
		apiGroup.GET("/users", h.sidebar)
		apiGroup.GET("/conversation/:partnerId", h.conversation)
		apiGroup.GET("/messages/:conversationId", h.messages)
		apiGroup.POST("/messages/send/:receiverId", h.send)
		apiGroup.POST("/messages/generate-reply", h.generateReply)
	}
	return r
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Health(ctx); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorBody{Message: "store unavailable", Status: http.StatusServiceUnavailable})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) serveWS(c *gin.Context) {
	h.push.ServeWS(c.Writer, c.Request, userID(c))
}

func (h *Handler) sidebar(c *gin.Context) {
	entries, err := h.store.Sidebar(c.Request.Context(), userID(c))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if entries == nil {
		entries = []chat.SidebarEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

// ConversationResponse is returned by the conversation lookup.
type ConversationResponse struct {
	Conversation chat.Conversation `json:"conversation"`
	SelectedUser chat.User         `json:"selectedUser"`
	Created      bool              `json:"created"`
}

func (h *Handler) conversation(c *gin.Context) {
	ctx := c.Request.Context()
	self := userID(c)
	partner, err := h.store.GetUser(ctx, c.Param("partnerId"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	conv, created, err := h.store.GetOrCreateConversation(ctx, self, partner.ID)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if created {
		h.push.Notify(ctx, h.receipts.Announce(ctx, conv, self)...)
	}
	c.JSON(http.StatusOK, ConversationResponse{Conversation: conv, SelectedUser: partner, Created: created})
}

func (h *Handler) messages(c *gin.Context) {
	ctx := c.Request.Context()
	conv, err := h.store.GetConversation(ctx, c.Param("conversationId"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if !conv.Has(userID(c)) {
		abortWithError(c, h.logger, store.ErrNotParticipant)
		return
	}
	page, err := queryInt(c, "page", 1, history.MaxPage)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	limit, err := queryInt(c, "limit", 0, history.MaxLimit)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	p, err := h.history.Page(ctx, conv.ID, page, limit)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if p.Messages == nil {
		p.Messages = []chat.Message{}
	}
	c.JSON(http.StatusOK, p)
}

// queryInt reads a non-negative integer no larger than upper.
func queryInt(c *gin.Context, key string, def, upper int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > upper {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, key, v)
	}
	return n, nil
}

// SendRequest is the body of the send endpoint.
type SendRequest struct {
	Text           string `json:"text"`
	Image          string `json:"image"`
	ConversationID string `json:"conversationId"`
}

// SendResponse carries the authoritative message.
type SendResponse struct {
	NewMessage chat.Message `json:"newMessage"`
}

func (h *Handler) send(c *gin.Context) {
	ctx := c.Request.Context()
	self := userID(c)

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	draft := chat.Draft{ConversationID: req.ConversationID, Text: req.Text, Image: req.Image}
	if draft.Empty() {
		abortWithError(c, h.logger, chat.ErrEmptyPayload)
		return
	}

	receiver, err := h.store.GetUser(ctx, c.Param("receiverId"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	conv, created, err := h.store.GetOrCreateConversation(ctx, self, receiver.ID)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	if req.ConversationID != "" && req.ConversationID != conv.ID {
		abortWithError(c, h.logger, fmt.Errorf("%w: conversation does not match receiver", errBadRequest))
		return
	}

	image := ""
	if req.Image != "" {
		if image, err = h.media.Save(ctx, req.Image); err != nil {
			abortWithError(c, h.logger, err)
			return
		}
	}

	msg := chat.Message{
		ConversationID: conv.ID,
		SenderID:       self,
		ReceiverID:     receiver.ID,
		Text:           req.Text,
		Image:          image,
	}
	if err := h.store.InsertMessage(ctx, &msg); err != nil {
		abortWithError(c, h.logger, err)
		return
	}

	if created {
		h.push.Notify(ctx, h.receipts.Announce(ctx, conv, self)...)
	}
	delivered, notices, err := h.receipts.Deliver(ctx, msg)
	if err != nil {
		// The message is stored; the receiver picks it up on reconnect.
		h.logger.Warn("immediate delivery failed", zap.String("message", msg.ID), zap.Error(err))
	} else {
		msg = delivered
		h.push.Notify(ctx, notices...)
	}

	c.JSON(http.StatusCreated, SendResponse{NewMessage: msg})
}

// ReplyRequest is the body of the reply suggestion endpoint.
type ReplyRequest struct {
	ConversationID    string `json:"conversationId" binding:"required"`
	SelectedMessageID string `json:"selectedMessageId" binding:"required"`
}

func (h *Handler) generateReply(c *gin.Context) {
	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, h.logger, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	replies, err := h.suggest.Generate(c.Request.Context(), userID(c), req.ConversationID, req.SelectedMessageID)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, replies)
}
