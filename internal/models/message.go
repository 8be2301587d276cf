package models

import "time"

// Message is one entry in a room's ordered history. Seq is assigned by the
// store inside the append transaction and increases by exactly one per send.
// Text and BlobPath are mutually exclusive payloads.
type Message struct {
	RoomID   string    `db:"room_id" json:"room_id"`
	Seq      int64     `db:"seq" json:"seq"`
	AuthorID string    `db:"author_id" json:"author_id"`
	Text     string    `db:"text" json:"text,omitempty"`
	BlobPath string    `db:"blob_path" json:"blob_path,omitempty"`
	Deleted  bool      `db:"deleted" json:"deleted"`
	SentAt   time.Time `db:"sent_at" json:"sent_at"`
}

// IsBlob reports whether the payload is a blob reference.
func (m Message) IsBlob() bool {
	return m.BlobPath != ""
}
