package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/sudokim/skku-chat/internal/blob"
	"github.com/sudokim/skku-chat/internal/events"
	"github.com/sudokim/skku-chat/internal/middleware"
	"github.com/sudokim/skku-chat/internal/models"
	"github.com/sudokim/skku-chat/internal/observability"
	"github.com/sudokim/skku-chat/internal/repositories"
	"github.com/sudokim/skku-chat/internal/roomsync"
)

// RoomWebSocketHandler owns the live chat endpoint. Each connection gets its
// own room synchronizer session; the client switches rooms and sends
// messages through JSON frames and receives view snapshots back.
type RoomWebSocketHandler struct {
	hub      *events.Hub
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	blobs    blob.Store
	resolver middleware.IdentityResolver
	loader   *roomsync.Loader
}

// NewRoomWebSocketHandler constructs a RoomWebSocketHandler.
func NewRoomWebSocketHandler(hub *events.Hub, rooms repositories.RoomRepository, messages repositories.MessageRepository, blobs blob.Store, resolver middleware.IdentityResolver) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{
		hub:      hub,
		rooms:    rooms,
		messages: messages,
		blobs:    blobs,
		resolver: resolver,
		loader:   roomsync.NewLoader(rooms),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type clientFrame struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id,omitempty"`
	Text     string `json:"text,omitempty"`
	Seq      int64  `json:"seq,omitempty"`
	OtherID  string `json:"other_id,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

type serverFrame struct {
	Type  string               `json:"type"`
	View  *roomsync.View       `json:"view,omitempty"`
	Rooms []models.RoomSummary `json:"rooms,omitempty"`
	Error string               `json:"error,omitempty"`
}

// Handle upgrades the connection, builds the session and runs the frame
// loop until the client disconnects.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("skku-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := middleware.BearerToken(c)
	user, err := h.resolver.CurrentIdentity(c.Request.Context(), token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")

	var writeMu sync.Mutex
	writeFrame := func(frame serverFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(frame); err != nil {
			observability.IncWSEvent("ws_error")
		}
	}

	session := roomsync.NewSession(user.ID, h.hub, h.rooms, h.messages, h.blobs,
		roomsync.RenderFunc(func(view roomsync.View) {
			writeFrame(serverFrame{Type: "view", View: &view})
		}))

	defer func() {
		session.Close()
		conn.Close()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
	}()

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		h.dispatch(c, session, &info, frame, writeFrame)
	}
}

func (h *RoomWebSocketHandler) dispatch(c *gin.Context, session *roomsync.Session, info *ConnInfo, frame clientFrame, writeFrame func(serverFrame)) {
	ctx := c.Request.Context()

	switch frame.Type {
	case "open":
		member, err := h.rooms.IsMember(ctx, frame.RoomID, info.UserID)
		if err != nil || !member {
			writeFrame(serverFrame{Type: "error", Error: "not a room member"})
			return
		}
		if err := session.Open(ctx, frame.RoomID); err != nil {
			writeFrame(serverFrame{Type: "error", Error: err.Error()})
		}

	case "message":
		if err := session.SendMessage(ctx, frame.Text); err != nil {
			writeFrame(serverFrame{Type: "error", Error: err.Error()})
		}

	case "blob":
		if err := session.SendBlob(ctx, frame.Filename, frame.Data); err != nil {
			writeFrame(serverFrame{Type: "error", Error: err.Error()})
		}

	case "delete":
		if err := session.DeleteMessage(ctx, frame.Seq); err != nil {
			writeFrame(serverFrame{Type: "error", Error: err.Error()})
		}

	case "create_room":
		if _, err := session.CreateRoom(ctx, frame.OtherID); err != nil {
			writeFrame(serverFrame{Type: "error", Error: err.Error()})
			return
		}
		h.sendRoomList(c, info.UserID, writeFrame)

	case "rooms":
		h.sendRoomList(c, info.UserID, writeFrame)

	default:
		writeFrame(serverFrame{Type: "error", Error: "unknown frame type"})
	}
}

func (h *RoomWebSocketHandler) sendRoomList(c *gin.Context, userID string, writeFrame func(serverFrame)) {
	rooms, err := h.loader.Load(c.Request.Context(), userID)
	if err != nil {
		writeFrame(serverFrame{Type: "error", Error: "failed to load rooms"})
		return
	}
	writeFrame(serverFrame{Type: "rooms", Rooms: rooms})
}
