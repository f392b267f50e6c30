// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers conversation CRUD, message ordering/windowing, profiles and follows

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	return s
}

func testConversation(id, owner string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:             id,
		OwnerAccountID: owner,
		Title:          "hello there",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestCreateAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-123", "alice.near")

	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-123")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}

	if got.ID != conv.ID {
		t.Errorf("expected ID %q, got %q", conv.ID, got.ID)
	}
	if got.OwnerAccountID != "alice.near" {
		t.Errorf("expected owner alice.near, got %q", got.OwnerAccountID)
	}
	if got.Title != "hello there" {
		t.Errorf("expected title %q, got %q", conv.Title, got.Title)
	}
	if !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Errorf("created_at mismatch: expected %v, got %v", conv.CreatedAt, got.CreatedAt)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetConversation(context.Background(), "missing")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateConversation_Duplicate(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-dup", "alice.near")

	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if err := s.CreateConversation(ctx, conv); err != ErrDuplicateConversation {
		t.Errorf("expected ErrDuplicateConversation, got %v", err)
	}
}

func TestTouchConversation(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-touch", "alice.near")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	later := conv.UpdatedAt.Add(time.Hour)
	if err := s.TouchConversation(ctx, "conv-touch", later); err != nil {
		t.Fatalf("TouchConversation failed: %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-touch")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("expected updated_at %v, got %v", later, got.UpdatedAt)
	}
}

func TestTouchConversation_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	err := s.TouchConversation(context.Background(), "missing", time.Now())
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversations_OrderedByUpdatedAt(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 3; i++ {
		conv := &Conversation{
			ID:             fmt.Sprintf("conv-%d", i),
			OwnerAccountID: "alice.near",
			Title:          fmt.Sprintf("title %d", i),
			CreatedAt:      base,
			UpdatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateConversation(ctx, conv); err != nil {
			t.Fatalf("CreateConversation failed: %v", err)
		}
	}
	// Another account's conversation must not appear
	other := testConversation("conv-other", "bob.near")
	if err := s.CreateConversation(ctx, other); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	convs, err := s.ListConversations(ctx, "alice.near", 10)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}

	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}
	if convs[0].ID != "conv-2" || convs[2].ID != "conv-0" {
		t.Errorf("expected newest first, got %s..%s", convs[0].ID, convs[2].ID)
	}
}

func TestGetRecentMessages_ChronologicalWindow(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-msgs", "alice.near")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-msgs",
			Role:           RoleUser,
			Content:        fmt.Sprintf("message %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	// Window of 3 keeps the most recent messages, in chronological order
	msgs, err := s.GetRecentMessages(ctx, "conv-msgs", 3)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, want := range []string{"msg-2", "msg-3", "msg-4"} {
		if msgs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, msgs[i].ID)
		}
	}
}

func TestGetRecentMessages_SameInstantKeepsInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-tie", "alice.near")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	// All messages share one timestamp; rowid must break the tie
	at := time.Now().UTC()
	for i := 0; i < 4; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-tie",
			Role:           RoleAssistant,
			Content:        "same instant",
			CreatedAt:      at,
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := s.GetRecentMessages(ctx, "conv-tie", 10)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}

	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	for i := range msgs {
		want := fmt.Sprintf("msg-%d", i)
		if msgs[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, msgs[i].ID)
		}
	}
}

func TestGetMessages_Pagination(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	conv := testConversation("conv-page", "alice.near")
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:             fmt.Sprintf("msg-%d", i),
			ConversationID: "conv-page",
			Role:           RoleUser,
			Content:        "x",
			CreatedAt:      base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, "conv-page", 2, 2)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "msg-2" || msgs[1].ID != "msg-3" {
		t.Errorf("expected msg-2,msg-3, got %s,%s", msgs[0].ID, msgs[1].ID)
	}
}

func TestUpsertAndGetProfile(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	profile := &Profile{
		AccountID:   "alice.near",
		DisplayName: "Alice",
		Bio:         "builder",
		Tags:        []string{"rust", "go"},
		UpdatedAt:   time.Now().UTC(),
	}

	if err := s.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("UpsertProfile failed: %v", err)
	}

	got, err := s.GetProfile(ctx, "alice.near")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.DisplayName != "Alice" {
		t.Errorf("expected display name Alice, got %q", got.DisplayName)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "rust" || got.Tags[1] != "go" {
		t.Errorf("unexpected tags: %v", got.Tags)
	}

	// Upsert replaces the existing row
	profile.Bio = "still building"
	if err := s.UpsertProfile(ctx, profile); err != nil {
		t.Fatalf("second UpsertProfile failed: %v", err)
	}
	got, err = s.GetProfile(ctx, "alice.near")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Bio != "still building" {
		t.Errorf("expected updated bio, got %q", got.Bio)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	_, err := s.GetProfile(context.Background(), "missing.near")
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchProfiles(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()
	profiles := []*Profile{
		{AccountID: "alice.near", DisplayName: "Alice", Bio: "rust developer", UpdatedAt: time.Now().UTC()},
		{AccountID: "bob.near", DisplayName: "Bob", Bio: "designer", Tags: []string{"figma"}, UpdatedAt: time.Now().UTC()},
		{AccountID: "carol.near", DisplayName: "Carol", Bio: "go developer", UpdatedAt: time.Now().UTC()},
	}
	for _, p := range profiles {
		if err := s.UpsertProfile(ctx, p); err != nil {
			t.Fatalf("UpsertProfile failed: %v", err)
		}
	}

	results, err := s.SearchProfiles(ctx, "developer", 10)
	if err != nil {
		t.Fatalf("SearchProfiles failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("expected 2 results for 'developer', got %d", len(results))
	}

	results, err = s.SearchProfiles(ctx, "figma", 10)
	if err != nil {
		t.Fatalf("SearchProfiles failed: %v", err)
	}
	if len(results) != 1 || results[0].AccountID != "bob.near" {
		t.Errorf("expected bob.near for 'figma', got %v", results)
	}
}

func TestFollows_IdempotentCreateAndDelete(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx := context.Background()

	if err := s.CreateFollow(ctx, "alice.near", "bob.near"); err != nil {
		t.Fatalf("CreateFollow failed: %v", err)
	}
	// Second create of the same edge is a no-op
	if err := s.CreateFollow(ctx, "alice.near", "bob.near"); err != nil {
		t.Fatalf("duplicate CreateFollow failed: %v", err)
	}

	follows, err := s.ListFollowing(ctx, "alice.near", 10)
	if err != nil {
		t.Fatalf("ListFollowing failed: %v", err)
	}
	if len(follows) != 1 {
		t.Fatalf("expected 1 follow edge, got %d", len(follows))
	}
	if follows[0].FolloweeID != "bob.near" {
		t.Errorf("expected followee bob.near, got %q", follows[0].FolloweeID)
	}

	if err := s.DeleteFollow(ctx, "alice.near", "bob.near"); err != nil {
		t.Fatalf("DeleteFollow failed: %v", err)
	}
	// Deleting a missing edge is a no-op
	if err := s.DeleteFollow(ctx, "alice.near", "bob.near"); err != nil {
		t.Fatalf("second DeleteFollow failed: %v", err)
	}

	follows, err = s.ListFollowing(ctx, "alice.near", 10)
	if err != nil {
		t.Fatalf("ListFollowing failed: %v", err)
	}
	if len(follows) != 0 {
		t.Errorf("expected no follow edges, got %d", len(follows))
	}
}
