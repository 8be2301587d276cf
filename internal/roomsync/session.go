package roomsync

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/sudokim/skku-chat/internal/blob"
	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/repositories"
)

var ErrNoOpenRoom = errors.New("no room is open")

// Session presents a live view of one room at a time for a single user:
// roster, ordered message history, subscription lifecycle. All prior
// subscriptions are released on every room switch, and async completions
// are tagged with the room they were issued for so a stale result can never
// write into the active view.
type Session struct {
	self     string
	hub      *events.Hub
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	blobs    blob.Store
	renderer Renderer

	mu         sync.Mutex
	activeRoom string
	loading    bool
	title      string
	roster     []string
	bubbles    []Bubble
	bubbleIdx  map[int64]int
	lastErr    string

	subMemberJoined   *events.Subscription
	subMemberLeft     *events.Subscription
	subMessageAdded   *events.Subscription
	subMessageChanged *events.Subscription
}

// NewSession builds a Session for the given user.
func NewSession(self string, hub *events.Hub, rooms repositories.RoomRepository, messages repositories.MessageRepository, blobs blob.Store, renderer Renderer) *Session {
	return &Session{
		self:      self,
		hub:       hub,
		rooms:     rooms,
		messages:  messages,
		blobs:     blobs,
		renderer:  renderer,
		bubbleIdx: make(map[int64]int),
	}
}

// Open switches the session to roomID. Re-opening the active room is a
// no-op. Otherwise the previous room's subscriptions are all released before
// the new ones are registered, the view resets to a loading placeholder, and
// title, roster and history load asynchronously.
func (s *Session) Open(ctx context.Context, roomID string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}

	s.mu.Lock()
	if roomID == s.activeRoom {
		s.mu.Unlock()
		return nil
	}

	s.closeSubsLocked()

	s.activeRoom = roomID
	s.loading = true
	s.title = ""
	s.roster = nil
	s.bubbles = nil
	s.bubbleIdx = make(map[int64]int)
	s.lastErr = ""

	// Subscribe before the backfill so nothing delivered in between is lost;
	// the apply functions are idempotent per member id / sequence number.
	s.subMemberJoined = s.hub.Subscribe(roomID, models.EventMemberJoined, s.handleEvent)
	s.subMemberLeft = s.hub.Subscribe(roomID, models.EventMemberLeft, s.handleEvent)
	s.subMessageAdded = s.hub.Subscribe(roomID, models.EventMessageAdded, s.handleEvent)
	s.subMessageChanged = s.hub.Subscribe(roomID, models.EventMessageChanged, s.handleEvent)

	s.renderLocked()
	s.mu.Unlock()

	go s.loadRoom(ctx, roomID)
	return nil
}

// Close releases all subscriptions and returns the session to idle. Called
// on connection teardown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeSubsLocked()
	s.activeRoom = ""
	s.loading = false
}

// SendMessage appends a text message to the open room. A no-op when no room
// is open or the text is empty. Not optimistic: the bubble appears only when
// the added event is delivered back through the subscription.
func (s *Session) SendMessage(ctx context.Context, text string) error {
	s.mu.Lock()
	roomID := s.activeRoom
	s.mu.Unlock()

	if roomID == "" || text == "" {
		return nil
	}

	msg, err := s.messages.AppendMessage(ctx, roomID, s.self, text, "")
	if err != nil {
		return err
	}
	s.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageAdded, Message: &msg})
	return nil
}

// SendBlob uploads data under a collision-avoided name and appends a message
// referencing it. An upload failure aborts the send.
func (s *Session) SendBlob(ctx context.Context, filename string, data []byte) error {
	s.mu.Lock()
	roomID := s.activeRoom
	s.mu.Unlock()

	if roomID == "" {
		return ErrNoOpenRoom
	}

	dest := "images/" + roomID + "/" + randomBlobName() + filepath.Ext(filename)
	if err := s.blobs.Upload(ctx, dest, data); err != nil {
		return err
	}

	msg, err := s.messages.AppendMessage(ctx, roomID, s.self, "", dest)
	if err != nil {
		return err
	}
	s.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageAdded, Message: &msg})
	return nil
}

// DeleteMessage soft-deletes one of the user's own messages in the open room.
func (s *Session) DeleteMessage(ctx context.Context, seq int64) error {
	s.mu.Lock()
	roomID := s.activeRoom
	s.mu.Unlock()

	if roomID == "" {
		return ErrNoOpenRoom
	}

	msg, err := s.messages.SoftDeleteMessage(ctx, roomID, seq, s.self)
	if err != nil {
		return err
	}
	s.hub.Publish(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageChanged, Message: &msg})
	return nil
}

// CreateRoom starts a two-party room with otherID. The member set is written
// atomically with the room itself.
func (s *Session) CreateRoom(ctx context.Context, otherID string) (models.Room, error) {
	if otherID == "" {
		return models.Room{}, errors.New("other user id is required")
	}
	return s.rooms.CreateRoom(ctx, s.self+", "+otherID, []string{s.self, otherID})
}

// View returns a snapshot of the rendered state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// handleEvent applies one store event to the view. Events for a room other
// than the active one are discarded; a subscription being closed concurrently
// with a publish can still deliver one final event.
func (s *Session) handleEvent(ev models.RoomEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.RoomID != s.activeRoom {
		return
	}

	switch ev.Kind {
	case models.EventMemberJoined:
		s.applyMemberJoinedLocked(ev.Member)
	case models.EventMemberLeft:
		s.applyMemberLeftLocked(ev.Member)
	case models.EventMessageAdded:
		if ev.Message != nil {
			s.applyMessageAddedLocked(*ev.Message)
		}
	case models.EventMessageChanged:
		if ev.Message != nil {
			s.applyMessageChangedLocked(*ev.Message)
		}
	default:
		return
	}
	s.renderLocked()
}

// applyMemberJoinedLocked adds the member to the roster in arrival order.
// Joining an already-present member is idempotent.
func (s *Session) applyMemberJoinedLocked(memberID string) {
	for _, m := range s.roster {
		if m == memberID {
			return
		}
	}
	s.roster = append(s.roster, memberID)
}

// applyMemberLeftLocked removes the member, preserving the remaining order.
// Leaving an absent member is a no-op.
func (s *Session) applyMemberLeftLocked(memberID string) {
	for i, m := range s.roster {
		if m == memberID {
			s.roster = append(s.roster[:i], s.roster[i+1:]...)
			return
		}
	}
}

func (s *Session) applyMessageAddedLocked(msg models.Message) {
	if _, ok := s.bubbleIdx[msg.Seq]; ok {
		// Backfill and a live event can deliver the same message once each.
		return
	}

	b := bubbleFor(s.self, msg)
	s.bubbleIdx[msg.Seq] = len(s.bubbles)
	s.bubbles = append(s.bubbles, b)

	if b.Kind == BubbleImageLoading {
		go s.resolveBlob(s.activeRoom, msg.Seq, msg.BlobPath)
	}
}

// applyMessageChangedLocked replaces the rendered entry in place. The store
// only emits changes for soft deletions, so the replacement always hides the
// original payload.
func (s *Session) applyMessageChangedLocked(msg models.Message) {
	i, ok := s.bubbleIdx[msg.Seq]
	if !ok {
		return
	}
	s.bubbles[i] = bubbleFor(s.self, msg)
}

// resolveBlob turns a blob reference into a URL off the event path, then
// swaps the loading placeholder if the room and bubble are still current.
func (s *Session) resolveBlob(roomID string, seq int64, path string) {
	url, err := s.blobs.URL(context.Background(), path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeRoom != roomID {
		return
	}
	i, ok := s.bubbleIdx[seq]
	if !ok || s.bubbles[i].Kind != BubbleImageLoading {
		return
	}

	if err != nil {
		s.bubbles[i].Kind = BubbleImageError
	} else {
		s.bubbles[i].Kind = BubbleImage
		s.bubbles[i].URL = url
	}
	s.renderLocked()
}

// loadRoom fetches title, roster and history for roomID. Every write back
// into the session checks that roomID is still the active room, so a fetch
// outlived by a room switch cannot clobber the new view.
func (s *Session) loadRoom(ctx context.Context, roomID string) {
	room, err := s.rooms.GetRoom(ctx, roomID)

	s.mu.Lock()
	if s.activeRoom != roomID {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.loading = false
		s.lastErr = err.Error()
		s.renderLocked()
		s.mu.Unlock()
		return
	}
	s.title = room.Title
	s.loading = false
	s.renderLocked()
	s.mu.Unlock()

	// Replay existing members and history into this session only, through
	// the same apply path live events take. handleEvent re-checks the room
	// tag, so a switch mid-backfill drops the remainder.
	members, err := s.rooms.Members(ctx, roomID)
	if err == nil {
		for _, m := range members {
			s.handleEvent(models.RoomEvent{RoomID: roomID, Kind: models.EventMemberJoined, Member: m})
		}
	}

	msgs, err := s.messages.ListMessages(ctx, roomID)
	if err == nil {
		for i := range msgs {
			s.handleEvent(models.RoomEvent{RoomID: roomID, Kind: models.EventMessageAdded, Message: &msgs[i]})
		}
	}
}

func (s *Session) closeSubsLocked() {
	s.subMemberJoined.Close()
	s.subMemberLeft.Close()
	s.subMessageAdded.Close()
	s.subMessageChanged.Close()
	s.subMemberJoined = nil
	s.subMemberLeft = nil
	s.subMessageAdded = nil
	s.subMessageChanged = nil
}

func (s *Session) viewLocked() View {
	view := View{
		RoomID:  s.activeRoom,
		Loading: s.loading,
		Title:   s.title,
		Members: append([]string(nil), s.roster...),
		Bubbles: append([]Bubble(nil), s.bubbles...),
		Err:     s.lastErr,
	}
	if view.Loading {
		view.Title = "Loading..."
	}
	return view
}

func (s *Session) renderLocked() {
	if s.renderer != nil {
		s.renderer.Render(s.viewLocked())
	}
}

// randomBlobName builds a 13-digit numeric name from the current timestamp
// plus a random offset, retrying until the sum has exactly 13 digits.
func randomBlobName() string {
	for {
		n := time.Now().UnixMilli() + rand.Int63n(10_000_000_000_000)
		name := strconv.FormatInt(n, 10)
		if len(name) == 13 {
			return name
		}
	}
}
