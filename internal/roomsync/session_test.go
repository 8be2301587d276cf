package roomsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/mocks"
	"github.com/sudokim/skku-chat/internal/models"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached before deadline")
}

func expectRoomLoad(rooms *mocks.RoomRepositoryMock, messages *mocks.MessageRepositoryMock, roomID, title string, members []string, msgs []models.Message) {
	rooms.On("GetRoom", mock.Anything, roomID).Return(models.Room{ID: roomID, Title: title}, nil)
	rooms.On("Members", mock.Anything, roomID).Return(members, nil)
	messages.On("ListMessages", mock.Anything, roomID).Return(msgs, nil)
}

func TestOpenSwapsSubscriptions(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", nil, nil)
	expectRoomLoad(rooms, messages, "room_b", "b", nil, nil)

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "room_a"))
	require.Equal(t, 4, hub.SubscriberCount("room_a"))
	waitFor(t, func() bool { return !s.View().Loading })

	require.NoError(t, s.Open(context.Background(), "room_b"))
	require.Equal(t, 0, hub.SubscriberCount("room_a"))
	require.Equal(t, 4, hub.SubscriberCount("room_b"))
	waitFor(t, func() bool { return s.View().Title == "b" })
}

func TestOpenSameRoomIsNoOp(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	rooms.On("GetRoom", mock.Anything, "room_a").Return(models.Room{ID: "room_a", Title: "a"}, nil).Once()
	rooms.On("Members", mock.Anything, "room_a").Return([]string(nil), nil).Once()
	messages.On("ListMessages", mock.Anything, "room_a").Return([]models.Message(nil), nil).Once()

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return !s.View().Loading })
	require.NoError(t, s.Open(context.Background(), "room_a"))

	require.Equal(t, 4, hub.SubscriberCount("room_a"))
	rooms.AssertExpectations(t)
}

func TestOpenRequiresRoomID(t *testing.T) {
	s := NewSession("alice", events.NewHub(), new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), nil)
	require.Error(t, s.Open(context.Background(), ""))
}

func TestMemberJoinIsIdempotent(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", []string{"alice"}, nil)

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return len(s.View().Members) == 1 })

	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberJoined, Member: "bob"})
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberJoined, Member: "bob"})

	require.Equal(t, []string{"alice", "bob"}, s.View().Members)
}

func TestMemberLeavePreservesOrder(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", []string{"alice", "bob", "carol"}, nil)

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return len(s.View().Members) == 3 })

	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberLeft, Member: "bob"})
	require.Equal(t, []string{"alice", "carol"}, s.View().Members)

	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMemberLeft, Member: "dave"})
	require.Equal(t, []string{"alice", "carol"}, s.View().Members)
}

func TestSendMessageRendersOnDelivery(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", nil, nil)

	sent := models.Message{RoomID: "room_a", Seq: 1, AuthorID: "alice", Text: "hi"}
	messages.On("AppendMessage", mock.Anything, "room_a", "alice", "hi", "").Return(sent, nil).Once()

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return !s.View().Loading })

	require.NoError(t, s.SendMessage(context.Background(), "hi"))

	view := s.View()
	require.Len(t, view.Bubbles, 1)
	require.Equal(t, "alice", view.Bubbles[0].Author)
	require.Equal(t, "hi", view.Bubbles[0].Text)
	require.True(t, view.Bubbles[0].Self)
	messages.AssertExpectations(t)
}

func TestDuplicateDeliveryRendersOnce(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	msg := models.Message{RoomID: "room_a", Seq: 1, AuthorID: "bob", Text: "hey"}
	expectRoomLoad(rooms, messages, "room_a", "a", nil, []models.Message{msg})

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return len(s.View().Bubbles) == 1 })

	// The backfill already replayed seq 1; a live event for it must not
	// append a second bubble.
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMessageAdded, Message: &msg})
	require.Len(t, s.View().Bubbles, 1)
}

func TestSendMessageNoOpWithoutRoomOrText(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	s := NewSession("alice", events.NewHub(), new(mocks.RoomRepositoryMock), messages, new(mocks.BlobStoreMock), nil)

	require.NoError(t, s.SendMessage(context.Background(), "hi"))
	require.NoError(t, s.SendMessage(context.Background(), ""))
	messages.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteMessageReplacesBubble(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	original := models.Message{RoomID: "room_a", Seq: 1, AuthorID: "alice", Text: "secret"}
	expectRoomLoad(rooms, messages, "room_a", "a", nil, []models.Message{original})

	deleted := original
	deleted.Text = ""
	deleted.Deleted = true
	messages.On("SoftDeleteMessage", mock.Anything, "room_a", int64(1), "alice").Return(deleted, nil).Once()

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return len(s.View().Bubbles) == 1 })

	require.NoError(t, s.DeleteMessage(context.Background(), 1))

	view := s.View()
	require.Len(t, view.Bubbles, 1)
	require.Equal(t, BubbleDeleted, view.Bubbles[0].Kind)
	require.Empty(t, view.Bubbles[0].Text)
	messages.AssertExpectations(t)
}

func TestStaleRoomFetchIsDiscarded(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)

	gate := make(chan struct{})
	rooms.On("GetRoom", mock.Anything, "room_a").Run(func(mock.Arguments) { <-gate }).Return(models.Room{ID: "room_a", Title: "stale"}, nil)
	rooms.On("Members", mock.Anything, "room_a").Return([]string(nil), nil).Maybe()
	messages.On("ListMessages", mock.Anything, "room_a").Return([]models.Message(nil), nil).Maybe()
	expectRoomLoad(rooms, messages, "room_b", "fresh", nil, nil)

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()

	require.NoError(t, s.Open(context.Background(), "room_a"))
	require.NoError(t, s.Open(context.Background(), "room_b"))
	waitFor(t, func() bool { return s.View().Title == "fresh" })

	// Let room_a's fetch finish after the switch; its result must not land.
	close(gate)
	time.Sleep(50 * time.Millisecond)

	view := s.View()
	require.Equal(t, "room_b", view.RoomID)
	require.Equal(t, "fresh", view.Title)
}

func TestCreateRoomMembership(t *testing.T) {
	rooms := new(mocks.RoomRepositoryMock)
	rooms.On("CreateRoom", mock.Anything, "alice, bob", []string{"alice", "bob"}).
		Return(models.Room{ID: "room_x", Title: "alice, bob"}, nil).Once()

	s := NewSession("alice", events.NewHub(), rooms, new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), nil)

	room, err := s.CreateRoom(context.Background(), "bob")
	require.NoError(t, err)
	require.Equal(t, "room_x", room.ID)
	rooms.AssertExpectations(t)

	_, err = s.CreateRoom(context.Background(), "")
	require.Error(t, err)
}

func TestBlobMessageResolvesToImage(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", nil, nil)

	blobs := new(mocks.BlobStoreMock)
	blobs.On("URL", mock.Anything, "images/room_a/123.png").Return("/blobs/images/room_a/123.png", nil).Once()

	s := NewSession("alice", hub, rooms, messages, blobs, nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return !s.View().Loading })

	msg := models.Message{RoomID: "room_a", Seq: 1, AuthorID: "bob", BlobPath: "images/room_a/123.png"}
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMessageAdded, Message: &msg})

	waitFor(t, func() bool {
		v := s.View()
		return len(v.Bubbles) == 1 && v.Bubbles[0].Kind == BubbleImage
	})
	require.Equal(t, "/blobs/images/room_a/123.png", s.View().Bubbles[0].URL)
	blobs.AssertExpectations(t)
}

func TestBlobResolveFailureMarksError(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", nil, nil)

	blobs := new(mocks.BlobStoreMock)
	blobs.On("URL", mock.Anything, "images/room_a/gone.png").Return("", assert.AnError).Once()

	s := NewSession("alice", hub, rooms, messages, blobs, nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return !s.View().Loading })

	msg := models.Message{RoomID: "room_a", Seq: 1, AuthorID: "bob", BlobPath: "images/room_a/gone.png"}
	hub.Publish(models.RoomEvent{RoomID: "room_a", Kind: models.EventMessageAdded, Message: &msg})

	waitFor(t, func() bool {
		v := s.View()
		return len(v.Bubbles) == 1 && v.Bubbles[0].Kind == BubbleImageError
	})
}

func TestSendBlobUploadFailureAborts(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	expectRoomLoad(rooms, messages, "room_a", "a", nil, nil)

	blobs := new(mocks.BlobStoreMock)
	blobs.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError).Once()

	s := NewSession("alice", hub, rooms, messages, blobs, nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))
	waitFor(t, func() bool { return !s.View().Loading })

	err := s.SendBlob(context.Background(), "cat.png", []byte("data"))
	require.Error(t, err)
	messages.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSendBlobRequiresOpenRoom(t *testing.T) {
	s := NewSession("alice", events.NewHub(), new(mocks.RoomRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.BlobStoreMock), nil)
	require.ErrorIs(t, s.SendBlob(context.Background(), "cat.png", []byte("data")), ErrNoOpenRoom)
	require.ErrorIs(t, s.DeleteMessage(context.Background(), 1), ErrNoOpenRoom)
}

func TestLoadRoomErrorSurfacesInView(t *testing.T) {
	hub := events.NewHub()
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	rooms.On("GetRoom", mock.Anything, "room_a").Return(models.Room{}, assert.AnError)

	s := NewSession("alice", hub, rooms, messages, new(mocks.BlobStoreMock), nil)
	defer s.Close()
	require.NoError(t, s.Open(context.Background(), "room_a"))

	waitFor(t, func() bool { return s.View().Err != "" })
	require.False(t, s.View().Loading)
}

func TestRandomBlobNameLength(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := randomBlobName()
		if len(name) != 13 {
			t.Fatalf("expected a 13 digit name, got %q", name)
		}
	}
}
