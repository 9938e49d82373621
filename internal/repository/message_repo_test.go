package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/workspace-chat/backend/internal/db"
	"github.com/workspace-chat/backend/internal/model"
)

func newRepo(t *testing.T) *MessageRepository {
	t.Helper()
	testDB, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { testDB.Close() })
	return NewMessageRepository(testDB)
}

func TestMessageRepository_CreateAndGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)

	msg := &model.Message{
		ID:          "m1",
		WorkspaceID: "ws-1",
		Sender:      model.Sender{ID: "u1", Name: "alice", AvatarURL: "https://example.com/a.png"},
		Body:        "hello",
		CreatedAt:   created,
	}
	if err := repo.Create(ctx, msg); err != nil {
		t.Fatalf("failed to create message: %v", err)
	}

	got, err := repo.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("failed to get message: %v", err)
	}
	if got.WorkspaceID != "ws-1" || got.Sender != msg.Sender || got.Body != "hello" || !got.CreatedAt.Equal(created) {
		t.Errorf("unexpected message %+v", got)
	}

	if err := repo.Create(ctx, msg); err == nil {
		t.Error("expected duplicate id to be rejected")
	}
	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestMessageRepository_ListPage(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		repo.Create(ctx, &model.Message{ID: id, WorkspaceID: "ws-1", Sender: model.Sender{ID: "u", Name: "n"}, Body: id, CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}
	repo.Create(ctx, &model.Message{ID: "x", WorkspaceID: "ws-2", Sender: model.Sender{ID: "u", Name: "n"}, Body: "x", CreatedAt: base})

	tests := []struct {
		page, size int
		want       string
		totalPages int
	}{
		{1, 2, "de", 3},
		{2, 2, "bc", 3},
		{3, 2, "a", 3},
		{4, 2, "", 3},
		{0, 10, "abcde", 1},
	}
	for _, tt := range tests {
		page, err := repo.ListPage(ctx, "ws-1", tt.page, tt.size)
		if err != nil {
			t.Fatalf("failed to list page: %v", err)
		}
		got := ""
		for _, m := range page.Messages {
			got += m.ID
		}
		if got != tt.want {
			t.Errorf("page %d/%d: expected %q, got %q", tt.page, tt.size, tt.want, got)
		}
		if page.Pagination.TotalCount != 5 || page.Pagination.TotalPages != tt.totalPages {
			t.Errorf("page %d/%d: unexpected pagination %+v", tt.page, tt.size, page.Pagination)
		}
	}

	empty, err := repo.ListPage(ctx, "ws-none", 1, 10)
	if err != nil || empty.Messages == nil || len(empty.Messages) != 0 || empty.Pagination.HasMore() {
		t.Errorf("expected an empty page, got %+v (%v)", empty, err)
	}
}
