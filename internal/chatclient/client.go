package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"bankadvisor/internal/models"
)

// User-facing notices shown in place of raw transport errors.
const (
	RateLimitNotice = "You're sending messages a little too quickly. Give it a moment and try again."
	BillingNotice   = "The advisor is temporarily unavailable. Please try again later."
	GenericNotice   = "Something went wrong talking to the advisor. Please try again."
)

var (
	// ErrBusy means an exchange is already in flight; the caller must wait
	// for it to resolve before sending again.
	ErrBusy = errors.New("an exchange is already in flight")
	// ErrEmptyInput rejects blank or whitespace-only submissions.
	ErrEmptyInput = errors.New("message is empty")
	// ErrNoIdentity rejects document uploads without an authenticated identity.
	ErrNoIdentity = errors.New("authenticated identity required")
)

// MessageStore persists conversations and messages. All writes from the
// client are fire-and-forget: a failed write is logged and the chat goes on.
type MessageStore interface {
	CreateConversation(ctx context.Context, id, userID string) error
	SaveMessage(ctx context.Context, msg models.Message) error
}

// DocumentStore accepts binary uploads keyed by an authenticated identity.
type DocumentStore interface {
	Upload(ctx context.Context, identity string, files []UploadFile) ([]string, error)
}

// UploadFile is one document in an upload batch.
type UploadFile struct {
	Name string
	Data []byte
}

// Client owns one advisor chat session: the ordered transcript, the typing
// indicator, the per-message delivery status, and exactly one in-flight proxy
// exchange at a time.
type Client struct {
	proxyURL   string
	httpClient *http.Client
	store      MessageStore
	documents  DocumentStore
	identity   string
	logger     *logrus.Logger

	deliverDelay time.Duration

	mu             sync.Mutex
	busy           bool
	typing         bool
	conversationID string
	transcript     []*models.Message
	notice         string
}

// Option customizes a Client.
type Option func(*Client)

// WithMessageStore attaches a persistence collaborator.
func WithMessageStore(store MessageStore) Option {
	return func(c *Client) { c.store = store }
}

// WithDocumentStore attaches an upload collaborator.
func WithDocumentStore(store DocumentStore) Option {
	return func(c *Client) { c.documents = store }
}

// WithIdentity sets the authenticated user identity.
func WithIdentity(identity string) Option {
	return func(c *Client) { c.identity = identity }
}

// WithHTTPClient overrides the transport.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithDeliverDelay overrides the mocked network-ack delay before a user
// message flips from sending to delivered.
func WithDeliverDelay(d time.Duration) Option {
	return func(c *Client) { c.deliverDelay = d }
}

// WithLogger overrides the logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a session client targeting the given advisor proxy URL.
func NewClient(proxyURL string, opts ...Option) *Client {
	c := &Client{
		proxyURL:     proxyURL,
		httpClient:   &http.Client{},
		deliverDelay: 600 * time.Millisecond,
		logger:       logrus.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize opens the session: it mints the conversation identifier, creates
// the conversation record best-effort, then requests the assistant's opening
// turn with an empty transcript.
func (c *Client) Initialize(ctx context.Context) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	c.mu.Lock()
	c.conversationID = uuid.NewString()
	conversationID := c.conversationID
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.CreateConversation(ctx, conversationID, c.identity); err != nil {
			c.logger.WithError(err).Warn("conversation create failed, continuing without persistence")
		}
	}
	return c.exchange(ctx)
}

// Send submits one user message and runs the full exchange: append the
// sending-status message, persist it fire-and-forget, stream the assistant's
// reply. Blank input and concurrent sends are rejected up front.
func (c *Client) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()

	msg := &models.Message{
		ConversationID: c.ConversationID(),
		Role:           models.RoleUser,
		Content:        text,
		Status:         models.StatusSending,
		CreatedAt:      time.Now(),
	}
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()

	c.persistAsync(*msg)
	c.scheduleDelivered(msg)

	return c.exchange(ctx)
}

// UploadDocuments stores a batch of files and feeds a synthetic user message
// listing the filenames through the normal send path.
func (c *Client) UploadDocuments(ctx context.Context, files []UploadFile) error {
	if c.identity == "" {
		return ErrNoIdentity
	}
	if c.documents == nil {
		return errors.New("document store not configured")
	}
	stored, err := c.documents.Upload(ctx, c.identity, files)
	if err != nil {
		c.setNotice(GenericNotice)
		return fmt.Errorf("upload documents: %w", err)
	}
	return c.Send(ctx, "I have uploaded these documents: "+strings.Join(stored, ", "))
}

// Transcript returns a snapshot of the current message log.
func (c *Client) Transcript() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.transcript))
	for i, msg := range c.transcript {
		out[i] = *msg
	}
	return out
}

// Typing reports whether the assistant-typing indicator is showing.
func (c *Client) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// Busy reports whether an exchange is in flight.
func (c *Client) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// ConversationID returns the session identifier, empty before Initialize.
func (c *Client) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// LastNotice returns the most recent user-facing notice, empty if none.
func (c *Client) LastNotice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

func (c *Client) acquire() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	c.notice = ""
	return nil
}

func (c *Client) release() {
	c.mu.Lock()
	c.busy = false
	c.mu.Unlock()
}

type proxyRequest struct {
	Messages []models.TranscriptEntry `json:"messages"`
}

type proxyError struct {
	Error string `json:"error"`
}

// exchange runs one request/response cycle against the proxy. The typing
// indicator is set for its whole duration and cleared on every exit path.
func (c *Client) exchange(ctx context.Context) error {
	c.mu.Lock()
	c.typing = true
	history := make([]models.TranscriptEntry, 0, len(c.transcript))
	for _, msg := range c.transcript {
		history = append(history, models.TranscriptEntry{Role: msg.Role, Content: msg.Content})
	}
	c.mu.Unlock()
	defer c.clearTyping()

	payload, err := json.Marshal(proxyRequest{Messages: history})
	if err != nil {
		c.setNotice(GenericNotice)
		return fmt.Errorf("marshal history: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.proxyURL, bytes.NewReader(payload))
	if err != nil {
		c.setNotice(GenericNotice)
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setNotice(GenericNotice)
		return fmt.Errorf("proxy request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return c.consumeStream(ctx, resp.Body)
	case http.StatusTooManyRequests:
		c.setNotice(RateLimitNotice)
		return fmt.Errorf("proxy rate limited: %s", readErrorBody(resp.Body))
	case http.StatusPaymentRequired:
		c.setNotice(BillingNotice)
		return fmt.Errorf("proxy billing unavailable: %s", readErrorBody(resp.Body))
	default:
		c.setNotice(GenericNotice)
		return fmt.Errorf("proxy returned %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
}

// consumeStream applies content deltas to a single growing assistant message
// and finalizes it once the stream closes naturally.
func (c *Client) consumeStream(ctx context.Context, body io.Reader) error {
	var (
		decoder   StreamDecoder
		assistant *models.Message
		content   strings.Builder
	)
	buf := make([]byte, 2048)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, delta := range decoder.Feed(buf[:n]) {
				content.WriteString(delta)
				if assistant == nil {
					assistant = c.beginAssistantMessage(delta)
					continue
				}
				c.mu.Lock()
				assistant.Content = content.String()
				c.mu.Unlock()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			// Partial content already shown stays in the transcript; it is
			// just never persisted, since only a naturally completed stream
			// counts as final.
			c.setNotice(GenericNotice)
			return fmt.Errorf("read stream: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			c.setNotice(GenericNotice)
			return err
		}
	}

	if assistant != nil {
		c.finalizeAssistantMessage(assistant, content.String())
	}
	return nil
}

// beginAssistantMessage appends the assistant bubble on the first non-empty
// delta, ends the typing indicator, and marks the previous user message read.
func (c *Client) beginAssistantMessage(delta string) *models.Message {
	msg := &models.Message{
		ConversationID: c.ConversationID(),
		Role:           models.RoleAssistant,
		Content:        delta,
		CreatedAt:      time.Now(),
	}
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.typing = false
	for i := len(c.transcript) - 2; i >= 0; i-- {
		prev := c.transcript[i]
		if prev.Role == models.RoleUser {
			advanceStatus(prev, models.StatusRead)
			break
		}
	}
	c.mu.Unlock()
	return msg
}

// finalizeAssistantMessage derives apply actions from the completed content
// and strips their markers from the displayed text.
func (c *Client) finalizeAssistantMessage(msg *models.Message, content string) {
	c.mu.Lock()
	actions := models.ExtractApplyActions(content)
	if len(actions) > 0 {
		content = models.StripApplyMarkers(content)
	}
	msg.Content = content
	msg.Status = models.StatusDelivered
	msg.Metadata = actions
	persisted := *msg
	c.mu.Unlock()
	c.persistAsync(persisted)
}

// scheduleDelivered mocks the network ack: after a short delay the user
// message flips to delivered, unless the read receipt got there first.
func (c *Client) scheduleDelivered(msg *models.Message) {
	time.AfterFunc(c.deliverDelay, func() {
		c.mu.Lock()
		advanceStatus(msg, models.StatusDelivered)
		c.mu.Unlock()
	})
}

// advanceStatus moves a message status strictly forward. Callers hold c.mu.
func advanceStatus(msg *models.Message, status models.DeliveryStatus) {
	if msg.Status.Before(status) {
		msg.Status = status
	}
}

func (c *Client) persistAsync(msg models.Message) {
	if c.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.SaveMessage(ctx, msg); err != nil {
			c.logger.WithError(err).Warn("message persist failed")
		}
	}()
}

func (c *Client) clearTyping() {
	c.mu.Lock()
	c.typing = false
	c.mu.Unlock()
}

func (c *Client) setNotice(notice string) {
	c.mu.Lock()
	c.notice = notice
	c.mu.Unlock()
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil {
		return ""
	}
	var parsed proxyError
	if json.Unmarshal(data, &parsed) == nil && parsed.Error != "" {
		return parsed.Error
	}
	return string(data)
}
