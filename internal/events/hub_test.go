package events

import (
	"testing"

	"github.com/sudokim/skku-chat/internal/models"
)

func TestHubSubscribeAndPublish(t *testing.T) {
	hub := NewHub()

	var got []models.RoomEvent
	sub := hub.Subscribe("room_a", models.EventMessageAdded, func(ev models.RoomEvent) {
		got = append(got, ev)
	})
	defer sub.Close()

	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMessageAdded})
	hub.Publish(models.RoomEvent{RoomID: "room_b", Kind: models.EventMessageAdded})
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberJoined})

	if len(got) != 1 {
		t.Fatalf("expected one delivered event, got %d", len(got))
	}
	if got[0].RoomID != "room_a" {
		t.Fatalf("expected event for room_a, got %q", got[0].RoomID)
	}
}

func TestHubCloseStopsDelivery(t *testing.T) {
	hub := NewHub()

	calls := 0
	sub := hub.Subscribe("room_a", models.EventMemberLeft, func(models.RoomEvent) { calls++ })

	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberLeft})
	sub.Close()
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberLeft})

	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	if hub.SubscriberCount("room_a") != 0 {
		t.Fatalf("expected subscriber maps to be cleaned up")
	}
}

func TestHubCloseIdempotent(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe("room_a", models.EventMessageChanged, func(models.RoomEvent) {})
	sub.Close()
	sub.Close()

	var nilSub *Subscription
	nilSub.Close()

	if hub.SubscriberCount("room_a") != 0 {
		t.Fatalf("expected zero subscribers after close")
	}
}

func TestHubSubscriberCountAcrossKinds(t *testing.T) {
	hub := NewHub()

	fn := func(models.RoomEvent) {}
	subs := []*Subscription{
		hub.Subscribe("room_a", models.EventMemberJoined, fn),
		hub.Subscribe("room_a", models.EventMemberLeft, fn),
		hub.Subscribe("room_a", models.EventMessageAdded, fn),
		hub.Subscribe("room_a", models.EventMessageChanged, fn),
	}

	if hub.SubscriberCount("room_a") != 4 {
		t.Fatalf("expected 4 subscribers, got %d", hub.SubscriberCount("room_a"))
	}

	for _, s := range subs {
		s.Close()
	}
	if hub.SubscriberCount("room_a") != 0 {
		t.Fatalf("expected 0 subscribers, got %d", hub.SubscriberCount("room_a"))
	}
}
