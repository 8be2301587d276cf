package models

// EventKind identifies one of the four room change streams.
type EventKind string

const (
	EventMemberJoined   EventKind = "member_joined"
	EventMemberLeft     EventKind = "member_left"
	EventMessageAdded   EventKind = "message_added"
	EventMessageChanged EventKind = "message_changed"
)

// RoomEvent is delivered to room subscribers and broadcast over websockets.
// Member is set for the member streams, Message for the message streams.
type RoomEvent struct {
	RoomID  string    `json:"room_id"`
	Kind    EventKind `json:"kind"`
	Member  string    `json:"member,omitempty"`
	Message *Message  `json:"message,omitempty"`
}
