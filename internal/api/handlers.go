package api

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankadvisor/internal/models"
	"bankadvisor/internal/redis"
	"bankadvisor/internal/service/advisor"
	"bankadvisor/internal/storage"
)

// AdvisorStreamer is the proxy core behind the chat endpoint.
type AdvisorStreamer interface {
	Stream(ctx context.Context, transcript []models.TranscriptEntry) (io.ReadCloser, error)
}

// ConversationStore is the persistence collaborator for conversations and
// messages. Writes from the chat client are best-effort; the store itself is
// plain CRUD.
type ConversationStore interface {
	CreateConversation(ctx context.Context, id, userID string) (*models.Conversation, error)
	AddMessage(ctx context.Context, msg models.Message) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error)
	ListBanks(ctx context.Context) ([]models.Bank, error)
}

// Handler wires HTTP routes to the advisor proxy and the persistence store.
type Handler struct {
	advisor   AdvisorStreamer
	store     ConversationStore
	limiter   *redis.Client
	rateLimit int
	uploadDir string
	logger    *logrus.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(advisorSvc AdvisorStreamer, store ConversationStore, limiter *redis.Client, rateLimit int, uploadDir string, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handler{
		advisor:   advisorSvc,
		store:     store,
		limiter:   limiter,
		rateLimit: rateLimit,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.POST("/advisor/chat", h.rateLimitMiddleware(), h.advisorChat)
	api.GET("/banks", h.listBanks)
	api.POST("/conversations", h.createConversation)
	api.POST("/conversations/:id/messages", h.appendMessage)
	api.GET("/conversations/:id/messages", h.listMessages)
	api.POST("/uploads", h.uploadDocuments)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type chatProxyRequest struct {
	Messages []models.TranscriptEntry `json:"messages"`
}

// advisorChat relays the upstream token stream to the caller byte-for-byte.
func (h *Handler) advisorChat(c *gin.Context) {
	var req chatProxyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// Parse failures surface the caught error as a server-side failure,
		// matching the rest of the proxy's error contract.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	stream, err := h.advisor.Stream(c.Request.Context(), req.Messages)
	if err != nil {
		h.writeAdvisorError(c, err)
		return
	}
	defer stream.Close()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	buf := make([]byte, 4096)
	for {
		n, readErr := stream.Read(buf)
		if n > 0 {
			if _, writeErr := c.Writer.Write(buf[:n]); writeErr != nil {
				return
			}
			flusher.Flush()
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				h.logger.WithError(readErr).Warn("upstream stream ended abnormally")
			}
			return
		}
	}
}

func (h *Handler) writeAdvisorError(c *gin.Context, err error) {
	var upstreamErr *advisor.UpstreamError
	switch {
	case errors.Is(err, advisor.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": advisor.RateLimitMessage})
	case errors.Is(err, advisor.ErrBillingRequired):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": advisor.BillingMessage})
	case errors.Is(err, advisor.ErrNotConfigured):
		h.logger.Error("advisor request rejected: upstream api key not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "advisor service is not configured"})
	case errors.As(err, &upstreamErr):
		c.JSON(http.StatusInternalServerError, gin.H{"error": advisor.GatewayMessage})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *Handler) listBanks(c *gin.Context) {
	banks, err := h.store.ListBanks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if banks == nil {
		banks = make([]models.Bank, 0)
	}
	c.JSON(http.StatusOK, gin.H{"banks": banks})
}

type createConversationRequest struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

func (h *Handler) createConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	conv, err := h.store.CreateConversation(c.Request.Context(), id, req.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConversationExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("create conversation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create conversation failed"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

type appendMessageRequest struct {
	Role    models.Role           `json:"role"`
	Content string                `json:"content"`
	Status  models.DeliveryStatus `json:"status"`
}

func (h *Handler) appendMessage(c *gin.Context) {
	conversationID := c.Param("id")
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	msg, err := h.store.AddMessage(c.Request.Context(), models.Message{
		ConversationID: conversationID,
		Role:           req.Role,
		Content:        req.Content,
		Status:         req.Status,
	})
	if err != nil {
		if errors.Is(err, storage.ErrInvalidMessage) || errors.Is(err, storage.ErrUnknownConversation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("append message failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "append message failed"})
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.store.ListMessages(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if messages == nil {
		messages = make([]*models.Message, 0)
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

const maxUploadBytes = 10 << 20 // 10 MB

// uploadDocuments accepts a multipart batch of files for an authenticated
// identity and returns the stored filenames. The chat client converts a
// successful batch into one synthetic user message.
func (h *Handler) uploadDocuments(c *gin.Context) {
	identity := bearerIdentity(c)
	if identity == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
		return
	}
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	form := c.Request.MultipartForm
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one file is required"})
		return
	}

	destDir := filepath.Join(h.uploadDir, sanitizeIdentity(identity))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create directory failed"})
		return
	}

	stored := make([]string, 0, len(files))
	for _, file := range files {
		if file.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
			return
		}
		name := filepath.Base(file.Filename)
		if err := c.SaveUploadedFile(file, filepath.Join(destDir, name)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "save file failed"})
			return
		}
		stored = append(stored, name)
	}
	c.JSON(http.StatusCreated, gin.H{"files": stored})
}

func bearerIdentity(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

func sanitizeIdentity(identity string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, identity)
}

// rateLimitMiddleware enforces a fixed-window per-client limit on the advisor
// endpoint. Without redis it is a pass-through; limiter failures fail open so
// a cache outage never takes the advisor down.
func (h *Handler) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.limiter == nil || h.rateLimit <= 0 {
			c.Next()
			return
		}
		key := "advisor:ratelimit:" + c.ClientIP()
		count, err := h.limiter.IncrWindow(c.Request.Context(), key, time.Minute)
		if err != nil {
			h.logger.WithError(err).Warn("rate limit check failed")
			c.Next()
			return
		}
		if count > int64(h.rateLimit) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": advisor.RateLimitMessage})
			return
		}
		c.Next()
	}
}
