package roomsync

import (
	"context"
	"sync"

	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
)

// Loader builds the room list for a user: joined room ids resolved to
// (title, members) concurrently. A failure on one room is reported on that
// entry without blocking the rest.
type Loader struct {
	rooms repositories.RoomRepository
}

// NewLoader constructs a Loader.
func NewLoader(rooms repositories.RoomRepository) *Loader {
	return &Loader{rooms: rooms}
}

// Load returns one summary per joined room, in join order.
func (l *Loader) Load(ctx context.Context, userID string) ([]models.RoomSummary, error) {
	roomIDs, err := l.rooms.JoinedRooms(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.RoomSummary, len(roomIDs))
	var wg sync.WaitGroup
	for i, roomID := range roomIDs {
		wg.Add(1)
		go func(i int, roomID string) {
			defer wg.Done()
			summaries[i] = l.loadOne(ctx, roomID)
		}(i, roomID)
	}
	wg.Wait()

	return summaries, nil
}

func (l *Loader) loadOne(ctx context.Context, roomID string) models.RoomSummary {
	summary := models.RoomSummary{RoomID: roomID}

	room, err := l.rooms.GetRoom(ctx, roomID)
	if err != nil {
		summary.Err = err.Error()
		return summary
	}
	summary.Title = room.Title

	members, err := l.rooms.Members(ctx, roomID)
	if err != nil {
		summary.Err = err.Error()
		return summary
	}
	summary.Members = members
	return summary
}
