package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sudokim/skku-chat/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room and membership persistence. Room creation and
// membership changes are single transactions, so a member set can never be
// half-written.
type RoomRepository interface {
	CreateRoom(ctx context.Context, title string, memberIDs []string) (models.Room, error)
	GetRoom(ctx context.Context, roomID string) (models.Room, error)
	JoinedRooms(ctx context.Context, userID string) ([]string, error)
	Members(ctx context.Context, roomID string) ([]string, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	JoinUser(ctx context.Context, roomID, userID string) error
	LeaveUser(ctx context.Context, roomID, userID string) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// CreateRoom inserts a room together with its initial member set in one
// transaction.
func (r *RoomRepo) CreateRoom(ctx context.Context, title string, memberIDs []string) (models.Room, error) {
	if len(memberIDs) == 0 {
		return models.Room{}, errors.New("room needs at least one member")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Room{}, err
	}
	defer tx.Rollback()

	roomID := "room_" + uuid.NewString()

	var room models.Room
	if err := tx.QueryRowxContext(ctx,
		`INSERT INTO rooms (id, title) VALUES ($1, $2) RETURNING id, title, last_message, created_at`,
		roomID, title).StructScan(&room); err != nil {
		return models.Room{}, err
	}

	for _, memberID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roomID, memberID); err != nil {
			return models.Room{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Room{}, err
	}
	return room, nil
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room,
		`SELECT id, title, last_message, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	return room, err
}

// JoinedRooms returns the ids of rooms the user belongs to, oldest first.
func (r *RoomRepo) JoinedRooms(ctx context.Context, userID string) ([]string, error) {
	var roomIDs []string
	err := r.db.SelectContext(ctx, &roomIDs,
		`SELECT room_id FROM room_members WHERE user_id=$1 ORDER BY joined_at ASC`, userID)
	return roomIDs, err
}

// Members returns member ids in join order.
func (r *RoomRepo) Members(ctx context.Context, roomID string) ([]string, error) {
	var memberIDs []string
	err := r.db.SelectContext(ctx, &memberIDs,
		`SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY joined_at ASC`, roomID)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) == 0 {
		// Distinguish an empty room from a missing one.
		if _, err := r.GetRoom(ctx, roomID); err != nil {
			return nil, err
		}
	}
	return memberIDs, nil
}

// IsMember checks whether a user belongs to the room.
func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

// JoinUser adds a user to the room. Joining twice is a no-op.
func (r *RoomRepo) JoinUser(ctx context.Context, roomID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO room_members (room_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		roomID, userID)
	if err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

// LeaveUser removes a user from the room. Leaving an absent member is a no-op.
func (r *RoomRepo) LeaveUser(ctx context.Context, roomID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id=$1 AND user_id=$2`, roomID, userID)
	return err
}
