package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/workspace-chat/backend/internal/model"
)

const (
	// DefaultPageSize is used when a page size is not given.
	DefaultPageSize = 100
	// MaxPageSize bounds a single history page.
	MaxPageSize = 500
)

// MessageRepository provides data access for chat messages.
type MessageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message into the database.
func (r *MessageRepository) Create(ctx context.Context, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, workspace_id, sender_id, sender_name, sender_avatar, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID,
		msg.WorkspaceID,
		msg.Sender.ID,
		msg.Sender.Name,
		nullString(msg.Sender.AvatarURL),
		msg.Body,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by its ID.
func (r *MessageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	query := `
		SELECT id, workspace_id, sender_id, sender_name, sender_avatar, body, created_at
		FROM messages
		WHERE id = ?
	`

	msg, err := scanMessage(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListPage returns one page of a workspace's history. Page 1 holds the
// newest messages; messages within a page are in ascending order.
func (r *MessageRepository) ListPage(ctx context.Context, workspaceID string, pageNumber, pageSize int) (model.HistoryPage, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	page := model.HistoryPage{
		Messages:   []model.Message{},
		Pagination: model.Pagination{PageNumber: pageNumber, PageSize: pageSize},
	}

	total, err := r.Count(ctx, workspaceID)
	if err != nil {
		return page, err
	}
	page.Pagination.TotalCount = total
	page.Pagination.TotalPages = (total + pageSize - 1) / pageSize

	query := `
		SELECT id, workspace_id, sender_id, sender_name, sender_avatar, body, created_at
		FROM messages
		WHERE workspace_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, workspaceID, pageSize, (pageNumber-1)*pageSize)
	if err != nil {
		return page, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return page, fmt.Errorf("failed to scan message: %w", err)
		}
		page.Messages = append(page.Messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return page, fmt.Errorf("failed to iterate messages: %w", err)
	}

	// Rows come newest first.
	for i, j := 0, len(page.Messages)-1; i < j; i, j = i+1, j-1 {
		page.Messages[i], page.Messages[j] = page.Messages[j], page.Messages[i]
	}
	return page, nil
}

// Count returns the number of messages stored for a workspace.
func (r *MessageRepository) Count(ctx context.Context, workspaceID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE workspace_id = ?`, workspaceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	msg := &model.Message{}
	var avatar sql.NullString
	var createdAt int64

	err := row.Scan(
		&msg.ID,
		&msg.WorkspaceID,
		&msg.Sender.ID,
		&msg.Sender.Name,
		&avatar,
		&msg.Body,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if avatar.Valid {
		msg.Sender.AvatarURL = avatar.String
	}
	msg.CreatedAt = time.Unix(0, createdAt).UTC()
	return msg, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
