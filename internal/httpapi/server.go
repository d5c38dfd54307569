// Package httpapi exposes the daemon's local control and read API over
// loopback HTTP. Reads come from the in-memory caches and the archive;
// mutations go through the optimistic coordinator.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lbarreto/chatsync/internal/cache"
	"github.com/lbarreto/chatsync/internal/metrics"
	"github.com/lbarreto/chatsync/internal/model"
	"github.com/lbarreto/chatsync/internal/protocol"
	"github.com/lbarreto/chatsync/internal/status"
	"github.com/lbarreto/chatsync/internal/store"
)

// Mutator is the mutation surface the API exposes.
type Mutator interface {
	Send(ctx context.Context, chatID int64, body string, attachments []model.Attachment) model.Message
	Edit(ctx context.Context, chatID, messageID int64, body string) error
	Delete(ctx context.Context, chatID, messageID int64) error
	React(ctx context.Context, chatID, messageID int64, emoji string) error
	Pin(ctx context.Context, chatID, messageID int64, pinned bool) error
	CreateChat(ctx context.Context, name string, memberIDs []int64) (model.Chat, error)
	DeleteChat(ctx context.Context, chatID int64) error
	PendingCount() int
}

// Syncer refreshes the read model on demand.
type Syncer interface {
	Refresh(ctx context.Context) error
	EnsureMessages(ctx context.Context, chatID int64) error
}

// Subscriptions reports the active subscription set.
type Subscriptions interface {
	Active() []int64
	ActiveCount() int
}

// FrameSender pushes client frames onto the socket.
type FrameSender interface {
	Send(v any) error
}

// Server is the gin HTTP server for the control API.
type Server struct {
	session string
	machine *status.Machine
	cache   *cache.Store
	mut     Mutator
	syncer  Syncer
	subs    Subscriptions
	sock    FrameSender
	db      *store.DB
	metrics *metrics.Metrics
	logger  *zap.Logger

	srv *http.Server
}

// NewServer builds the API server.
func NewServer(session string, machine *status.Machine, c *cache.Store, mut Mutator, syncer Syncer, subs Subscriptions, sock FrameSender, db *store.DB, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{
		session: session,
		machine: machine,
		cache:   c,
		mut:     mut,
		syncer:  syncer,
		subs:    subs,
		sock:    sock,
		db:      db,
		metrics: m,
		logger:  logger,
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/chats", s.handleListChats)
		api.POST("/chats", s.handleCreateChat)
		api.DELETE("/chats/:id", s.handleDeleteChat)
		api.GET("/chats/:id/messages", s.handleListMessages)
		api.POST("/chats/:id/messages", s.handleSendMessage)
		api.PUT("/chats/:id/messages/:mid", s.handleEditMessage)
		api.DELETE("/chats/:id/messages/:mid", s.handleDeleteMessage)
		api.POST("/chats/:id/messages/:mid/reactions", s.handleReact)
		api.POST("/chats/:id/messages/:mid/pin", s.handlePin)
		api.POST("/chats/:id/read", s.handleMarkRead)
		api.POST("/chats/:id/typing", s.handleTyping)
		api.GET("/history/:id", s.handleHistory)
		api.GET("/search", s.handleSearch)
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))

	return r
}

// Start serves the API on the given loopback address.
func (s *Server) Start(listen string) error {
	s.srv = &http.Server{
		Addr:              listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("control api listening", zap.String("addr", listen))
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

type statusResponse struct {
	Session             string `json:"session"`
	State               string `json:"state"`
	PendingMutations    int    `json:"pending_mutations"`
	CachedChats         int    `json:"cached_chats"`
	CachedMessages      int    `json:"cached_messages"`
	ActiveSubscriptions int    `json:"active_subscriptions"`
}

func (s *Server) handleStatus(c *gin.Context) {
	chats, msgs := s.cache.Sizes()
	c.JSON(http.StatusOK, statusResponse{
		Session:             s.session,
		State:               string(s.machine.Current()),
		PendingMutations:    s.mut.PendingCount(),
		CachedChats:         chats,
		CachedMessages:      msgs,
		ActiveSubscriptions: s.subs.ActiveCount(),
	})
}

func (s *Server) handleListChats(c *gin.Context) {
	if s.cache.Stale() {
		if err := s.syncer.Refresh(c.Request.Context()); err != nil {
			s.logger.Warn("refresh on stale read failed", zap.Error(err))
		}
	}
	chats := s.cache.Chats()
	if chats == nil {
		chats = []model.Chat{}
	}
	c.JSON(http.StatusOK, chats)
}

func (s *Server) handleListMessages(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.syncer.EnsureMessages(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	msgs := s.cache.Messages(chatID)
	if msgs == nil {
		msgs = []model.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

type sendRequest struct {
	Body        string             `json:"body" binding:"required"`
	Attachments []model.Attachment `json:"attachments"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provisional := s.mut.Send(c.Request.Context(), chatID, req.Body, req.Attachments)
	c.JSON(http.StatusAccepted, provisional)
}

type editRequest struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) handleEditMessage(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathID(c, "mid")
	if !ok {
		return
	}
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mut.Edit(c.Request.Context(), chatID, msgID, req.Body); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeleteMessage(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathID(c, "mid")
	if !ok {
		return
	}
	if err := s.mut.Delete(c.Request.Context(), chatID, msgID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type reactRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (s *Server) handleReact(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathID(c, "mid")
	if !ok {
		return
	}
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mut.React(c.Request.Context(), chatID, msgID, req.Emoji); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) handlePin(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	msgID, ok := pathID(c, "mid")
	if !ok {
		return
	}
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.mut.Pin(c.Request.Context(), chatID, msgID, req.Pinned); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type createChatRequest struct {
	Name      string  `json:"name" binding:"required"`
	MemberIDs []int64 `json:"member_ids"`
}

func (s *Server) handleCreateChat(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	chat, err := s.mut.CreateChat(c.Request.Context(), req.Name, req.MemberIDs)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, chat)
}

func (s *Server) handleDeleteChat(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.mut.DeleteChat(c.Request.Context(), chatID); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

type readRequest struct {
	MessageID int64 `json:"message_id"`
}

// handleMarkRead zeroes the local unread counter immediately and tells
// the server; the authoritative messages_read broadcast follows.
func (s *Server) handleMarkRead(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req readRequest
	_ = c.ShouldBindJSON(&req)

	s.cache.UpdateChat(chatID, func(ch *model.Chat) {
		ch.UnreadCount = 0
	})
	if err := s.sock.Send(protocol.NewRead(chatID, req.MessageID)); err != nil {
		s.logger.Warn("read frame not sent", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleTyping(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.sock.Send(protocol.NewTyping(chatID)); err != nil {
		s.logger.Debug("typing frame not sent", zap.Error(err), zap.Int64("chat_id", chatID))
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleHistory(c *gin.Context) {
	chatID, ok := pathID(c, "id")
	if !ok {
		return
	}
	before, _ := strconv.ParseInt(c.Query("before"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := s.db.ListMessages(chatID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleSearch(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}
	chatID, _ := strconv.ParseInt(c.Query("chat_id"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))

	results, err := s.db.SearchMessages(q, chatID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []store.SearchResult{}
	}
	c.JSON(http.StatusOK, results)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
