package storage

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"bankadvisor/internal/models"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewStore(db), db
}

func TestBankRoundTrip(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	bank := models.Bank{
		Name:         "First National",
		Rating:       4.5,
		Features:     []string{"mobile app", "low fees"},
		Locations:    []string{"Springfield", "Shelbyville"},
		AccountTypes: []string{"savings", "checking"},
		Rates:        models.InterestRates{Savings: 4.1, Checking: 0.5, Mortgage: 6.2, Personal: 9.8},
	}
	id, err := store.InsertBank(ctx, bank)
	if err != nil {
		t.Fatalf("insert bank: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive bank id, got %d", id)
	}

	banks, err := store.ListBanks(ctx)
	if err != nil {
		t.Fatalf("list banks: %v", err)
	}
	if len(banks) != 1 {
		t.Fatalf("expected 1 bank, got %d", len(banks))
	}
	got := banks[0]
	if got.Name != bank.Name || got.Rating != bank.Rating || got.Rates != bank.Rates {
		t.Fatalf("bank fields altered: %+v", got)
	}
	if !reflect.DeepEqual(got.Features, bank.Features) ||
		!reflect.DeepEqual(got.Locations, bank.Locations) ||
		!reflect.DeepEqual(got.AccountTypes, bank.AccountTypes) {
		t.Fatalf("bank lists altered: %+v", got)
	}
}

func TestInsertBankRequiresName(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()

	if _, err := store.InsertBank(context.Background(), models.Bank{Name: "  "}); err == nil {
		t.Fatalf("expected error for blank bank name")
	}
}

func TestConversationLifecycle(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "conv-1", "user-1")
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	if conv.Status != models.ConversationActive {
		t.Fatalf("new conversation status %q", conv.Status)
	}

	loaded, err := store.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if loaded.ID != "conv-1" || loaded.UserID != "user-1" {
		t.Fatalf("unexpected conversation %+v", loaded)
	}

	if _, err := store.GetConversation(ctx, "missing"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for missing conversation, got %v", err)
	}

	if _, err := store.CreateConversation(ctx, "conv-1", ""); !errors.Is(err, ErrConversationExists) {
		t.Fatalf("expected ErrConversationExists for duplicate id, got %v", err)
	}
}

func TestMessagesOrderedWithinConversation(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	if _, err := store.CreateConversation(ctx, "conv-1", ""); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	contents := []string{"hello", "Hi, how can I help?", "I need a loan"}
	roles := []models.Role{models.RoleUser, models.RoleAssistant, models.RoleUser}
	for i := range contents {
		if _, err := store.AddMessage(ctx, models.Message{
			ConversationID: "conv-1",
			Role:           roles[i],
			Content:        contents[i],
			Status:         models.StatusSending,
		}); err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
	}

	messages, err := store.ListMessages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("expected %d messages, got %d", len(contents), len(messages))
	}
	for i, msg := range messages {
		if msg.Content != contents[i] || msg.Role != roles[i] {
			t.Fatalf("message %d out of order: %+v", i, msg)
		}
	}
}

func TestAddMessageValidation(t *testing.T) {
	store, db := newTestStore(t)
	defer db.Close()
	ctx := context.Background()

	if _, err := store.AddMessage(ctx, models.Message{Role: models.RoleUser, Content: "x"}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for missing conversation id, got %v", err)
	}
	if _, err := store.AddMessage(ctx, models.Message{
		ConversationID: "conv-1", Role: models.RoleSystem, Content: "x",
	}); !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage for system role, got %v", err)
	}
	// Foreign key enforcement: unknown conversation must be rejected.
	if _, err := store.AddMessage(ctx, models.Message{
		ConversationID: "missing", Role: models.RoleUser, Content: "x",
	}); !errors.Is(err, ErrUnknownConversation) {
		t.Fatalf("expected ErrUnknownConversation, got %v", err)
	}
}
