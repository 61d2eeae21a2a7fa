package dao

import (
	"context"
	"errors"
	"mindmesh/mindmesh/sources/psql/models"
	"mindmesh/mindmesh/sources/psql/psqltest"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newChatDAO(t *testing.T) *ChatDAO {
	t.Helper()
	return NewChatDAO(psqltest.NewDatabase(t).DB)
}

func TestInsertConversationDefaultsTitle(t *testing.T) {
	ctx := context.Background()
	d := newChatDAO(t)

	conv, err := d.InsertConversation(ctx, "owner-1", "")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if conv.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	got, err := d.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != models.DefaultConversationTitle || got.UserID != "owner-1" {
		t.Errorf("unexpected conversation: %+v", got)
	}
}

func TestGetConversationNotFound(t *testing.T) {
	_, err := newChatDAO(t).GetConversation(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConversationsByRecentActivity(t *testing.T) {
	ctx := context.Background()
	d := newChatDAO(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		conv, err := d.InsertConversation(ctx, "owner-1", "")
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := d.UpdateConversation(ctx, conv.ID, models.ConversationUpdate{UpdatedAt: base.Add(time.Duration(i) * time.Hour)}); err != nil {
			t.Fatalf("update: %v", err)
		}
		ids = append(ids, conv.ID)
	}
	if _, err := d.InsertConversation(ctx, "someone-else", ""); err != nil {
		t.Fatalf("insert: %v", err)
	}

	list, err := d.ListConversations(ctx, "owner-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(list))
	}
	for i, want := range []uuid.UUID{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Errorf("position %d: got %s, want %s", i, list[i].ID, want)
		}
	}
}

func TestUpdateConversationTitle(t *testing.T) {
	ctx := context.Background()
	d := newChatDAO(t)
	conv, _ := d.InsertConversation(ctx, "owner-1", "")

	title := "Sleep and focus"
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if err := d.UpdateConversation(ctx, conv.ID, models.ConversationUpdate{Title: &title, UpdatedAt: at}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := d.GetConversation(ctx, conv.ID)
	if got.Title != title {
		t.Errorf("title not updated: %q", got.Title)
	}
	if !got.UpdatedAt.Equal(at) {
		t.Errorf("updated_at: got %v, want %v", got.UpdatedAt, at)
	}

	// A nil title only bumps the timestamp.
	if err := d.UpdateConversation(ctx, conv.ID, models.ConversationUpdate{UpdatedAt: at.Add(time.Minute)}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = d.GetConversation(ctx, conv.ID)
	if got.Title != title {
		t.Errorf("title changed by timestamp bump: %q", got.Title)
	}

	if err := d.UpdateConversation(ctx, uuid.New(), models.ConversationUpdate{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing conversation, got %v", err)
	}
}

func TestListMessagesInWriteOrder(t *testing.T) {
	ctx := context.Background()
	d := newChatDAO(t)
	conv, _ := d.InsertConversation(ctx, "owner-1", "")

	turns := []struct {
		role    models.Role
		content string
	}{
		{models.RoleUser, "How was my week?"},
		{models.RoleAssistant, "Your focus went up."},
		{models.RoleUser, "Why?"},
	}
	for _, turn := range turns {
		if _, err := d.InsertMessage(ctx, conv.ID, "owner-1", turn.role, turn.content); err != nil {
			t.Fatalf("insert message: %v", err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	msgs, err := d.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(msgs) != len(turns) {
		t.Fatalf("expected %d messages, got %d", len(turns), len(msgs))
	}
	for i, turn := range turns {
		if msgs[i].Role != turn.role || msgs[i].Content != turn.content {
			t.Errorf("message %d: got %s %q", i, msgs[i].Role, msgs[i].Content)
		}
	}
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	ctx := context.Background()
	d := newChatDAO(t)
	conv, _ := d.InsertConversation(ctx, "owner-1", "")
	keep, _ := d.InsertConversation(ctx, "owner-1", "")
	d.InsertMessage(ctx, conv.ID, "owner-1", models.RoleUser, "hi")
	d.InsertMessage(ctx, conv.ID, "owner-1", models.RoleAssistant, "hello")
	d.InsertMessage(ctx, keep.ID, "owner-1", models.RoleUser, "stay")

	if err := d.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := d.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation still present: %v", err)
	}
	var count int64
	d.DB.Model(&models.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	if count != 0 {
		t.Errorf("expected messages removed, %d left", count)
	}
	left, _ := d.ListMessages(ctx, keep.ID)
	if len(left) != 1 {
		t.Errorf("other conversation lost messages: %d", len(left))
	}

	if err := d.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: expected ErrNotFound, got %v", err)
	}
}
