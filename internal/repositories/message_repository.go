package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/sudokim/skku-chat/internal/models"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotAuthor       = errors.New("only the author can delete a message")
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	AppendMessage(ctx context.Context, roomID, authorID, text, blobPath string) (models.Message, error)
	ListMessages(ctx context.Context, roomID string) ([]models.Message, error)
	GetMessage(ctx context.Context, roomID string, seq int64) (models.Message, error)
	SoftDeleteMessage(ctx context.Context, roomID string, seq int64, authorID string) (models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// AppendMessage stores a message under the next sequence number. The bump of
// rooms.last_message and the insert commit together, so concurrent senders
// always get distinct, gap-free sequence numbers.
func (r *MessageRepo) AppendMessage(ctx context.Context, roomID, authorID, text, blobPath string) (models.Message, error) {
	if (text == "") == (blobPath == "") {
		return models.Message{}, errors.New("message needs exactly one of text or blob path")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowxContext(ctx,
		`UPDATE rooms SET last_message = last_message + 1 WHERE id=$1 RETURNING last_message`, roomID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Message{}, err
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (room_id, seq, author_id, text, blob_path)
         VALUES ($1, $2, $3, $4, $5)
         RETURNING room_id, seq, author_id, text, blob_path, deleted, sent_at`,
		roomID, seq, authorID, text, blobPath).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// ListMessages returns the full ordered history of a room, soft-deleted
// entries included.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID string) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT room_id, seq, author_id, text, blob_path, deleted, sent_at
         FROM messages WHERE room_id=$1 ORDER BY seq ASC`, roomID)
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, roomID string, seq int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT room_id, seq, author_id, text, blob_path, deleted, sent_at
         FROM messages WHERE room_id=$1 AND seq=$2`, roomID, seq)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// SoftDeleteMessage marks a message as deleted without removing the record.
// Only the author may delete; the stored payload stays in place and rendering
// is responsible for hiding it.
func (r *MessageRepo) SoftDeleteMessage(ctx context.Context, roomID string, seq int64, authorID string) (models.Message, error) {
	msg, err := r.GetMessage(ctx, roomID, seq)
	if err != nil {
		return models.Message{}, err
	}
	if msg.AuthorID != authorID {
		return models.Message{}, ErrNotAuthor
	}

	err = r.db.QueryRowxContext(ctx,
		`UPDATE messages SET deleted = TRUE WHERE room_id=$1 AND seq=$2
         RETURNING room_id, seq, author_id, text, blob_path, deleted, sent_at`,
		roomID, seq).StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}
