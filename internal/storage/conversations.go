package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bankadvisor/internal/models"
)

// Caller-addressable failures, kept distinct from infrastructure errors so the
// API layer can answer 400 without echoing driver internals.
var (
	ErrConversationExists  = errors.New("conversation already exists")
	ErrUnknownConversation = errors.New("conversation not found")
	ErrInvalidMessage      = errors.New("invalid message")
)

// CreateConversation inserts a conversation record with the provided id.
func (s *Store) CreateConversation(ctx context.Context, id, userID string) (*models.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("conversation id is required")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, nullableString(userID), models.ConversationActive, now, now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrConversationExists
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &models.Conversation{
		ID:        id,
		UserID:    userID,
		Status:    models.ConversationActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// GetConversation returns a conversation record by id.
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var (
		conv   models.Conversation
		userID sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, status, created_at, updated_at FROM conversations WHERE id = ?`, id,
	).Scan(&conv.ID, &userID, &conv.Status, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	conv.UserID = userID.String
	return &conv, nil
}

// AddMessage stores a message and touches the conversation's updated_at.
func (s *Store) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.ConversationID == "" {
		return nil, fmt.Errorf("%w: conversation_id is required", ErrInvalidMessage)
	}
	if msg.Role != models.RoleUser && msg.Role != models.RoleAssistant {
		return nil, fmt.Errorf("%w: unsupported role %q", ErrInvalidMessage, msg.Role)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ConversationID, msg.Role, msg.Content, nullableString(string(msg.Status)), now,
	)
	if err != nil {
		if isConstraintViolation(err) {
			return nil, ErrUnknownConversation
		}
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE conversations SET updated_at = ? WHERE id = ?`, now, msg.ConversationID); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	msg.ID = id
	msg.CreatedAt = now
	return &msg, nil
}

// ListMessages returns the ordered transcript of one conversation.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, status, created_at
		 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		var status sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Status = models.DeliveryStatus(status.String)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func nullableString(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
