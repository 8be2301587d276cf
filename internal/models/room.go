package models

import "time"

// Room is a chat conversation. LastMessage is the sequence number of the
// most recent message and acts as the allocator for the next one.
type Room struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	LastMessage int64     `db:"last_message" json:"last_message"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RoomSummary is the room-list view of a room: title plus resolved members.
type RoomSummary struct {
	RoomID  string   `json:"room_id"`
	Title   string   `json:"title"`
	Members []string `json:"members"`
	Err     string   `json:"error,omitempty"`
}
