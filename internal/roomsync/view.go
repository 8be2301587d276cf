package roomsync

import (
	"time"

	"github.com/sudokim/skku-chat/internal/models"
)

// BubbleKind describes how a message entry is currently rendered.
type BubbleKind string

const (
	BubbleText         BubbleKind = "text"
	BubbleImage        BubbleKind = "image"
	BubbleImageLoading BubbleKind = "image_loading"
	BubbleImageError   BubbleKind = "image_error"
	BubbleDeleted      BubbleKind = "deleted"
)

// Bubble is one rendered message, keyed by sequence number.
type Bubble struct {
	Seq    int64      `json:"seq"`
	Author string     `json:"author"`
	Self   bool       `json:"self"`
	Kind   BubbleKind `json:"kind"`
	Text   string     `json:"text,omitempty"`
	URL    string     `json:"url,omitempty"`
	SentAt time.Time  `json:"sent_at"`
}

// View is the rendered state of the open room: title, roster in arrival
// order and the ordered message history.
type View struct {
	RoomID  string   `json:"room_id"`
	Loading bool     `json:"loading"`
	Title   string   `json:"title"`
	Members []string `json:"members"`
	Bubbles []Bubble `json:"bubbles"`
	Err     string   `json:"error,omitempty"`
}

// Renderer receives a fresh View after every state transition.
type Renderer interface {
	Render(view View)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(View)

func (f RenderFunc) Render(view View) { f(view) }

func bubbleFor(self string, msg models.Message) Bubble {
	b := Bubble{
		Seq:    msg.Seq,
		Author: msg.AuthorID,
		Self:   msg.AuthorID == self,
		SentAt: msg.SentAt,
	}
	switch {
	case msg.Deleted:
		// Author and timestamp only; the stored payload stays hidden.
		b.Kind = BubbleDeleted
	case msg.IsBlob():
		b.Kind = BubbleImageLoading
	default:
		b.Kind = BubbleText
		b.Text = msg.Text
	}
	return b
}
