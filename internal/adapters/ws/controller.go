package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Parley/internal/app"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Controller owns the websocket endpoint: one client ID per connection,
// commands dispatched by envelope type.
type Controller struct {
	relay   *app.Relay
	cfg     *config.Config
	limiter *RateLimiter
}

func NewController(relay *app.Relay, cfg *config.Config) *Controller {
	return &Controller{
		relay:   relay,
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.Interval),
	}
}

// Handle upgrades the request and runs the connection's pumps. Every upgrade
// gets its own client ID: the cookie token only names the user, so a second
// tab or a reconnect racing the old socket's teardown cannot tear down the
// fresh connection's registration.
func (ctl *Controller) Handle(c *gin.Context) {
	id := core.ClientID(uuid.NewString())
	user := domain.UserID(c.GetString("client_token"))
	log.Info().Str("module", "ws").Str("cid", string(id)).Str("uid", string(user)).Msg("new connection")

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}
	wsConn.SetReadLimit(ctl.cfg.ReadLimit)

	conn := newConn(wsConn)
	go conn.writePump(ctl.cfg.PingPeriod)
	ctl.readPump(id, user, conn)
}

func (ctl *Controller) readPump(id core.ClientID, user domain.UserID, conn *Conn) {
	defer func() {
		ctl.relay.Leave(id)
		ctl.limiter.Forget(id)
		conn.Close()
		log.Info().Str("module", "ws").Str("cid", string(id)).Msg("connection closed")
	}()

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "ws").Str("cid", string(id)).Msg("read error")
			}
			return
		}
		ctl.dispatch(id, user, conn, data)
	}
}

type command struct {
	Type     string        `json:"type"`
	Nickname string        `json:"nickname,omitempty"`
	Room     domain.RoomID `json:"room,omitempty"`
	Text     string        `json:"text,omitempty"`
}

func (ctl *Controller) dispatch(id core.ClientID, user domain.UserID, conn *Conn, data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		ctl.sendError(conn, "bad_payload")
		return
	}

	switch cmd.Type {
	case "register":
		ctl.handleRegister(id, user, conn, cmd)
	case "register_chat":
		ctl.handleRegisterChat(id, user, conn, cmd)
	case "send":
		ctl.handleSend(id, conn, cmd)
	case "leave":
		ctl.relay.Leave(id)
	case "ping":
		_ = conn.trySend([]byte(`{"type":"pong"}`))
	default:
		log.Warn().Str("module", "ws").Str("type", cmd.Type).Msg("unknown command")
		ctl.sendError(conn, "unknown_command")
	}
}

// handleRegister serves the legacy room-less protocol.
func (ctl *Controller) handleRegister(id core.ClientID, user domain.UserID, conn *Conn, cmd command) {
	nickname := strings.TrimSpace(cmd.Nickname)
	if err := domain.ValidateNickname(nickname); err != nil {
		ctl.sendError(conn, "invalid_nickname")
		return
	}
	ctl.relay.Register(id, user, conn, nickname)
}

func (ctl *Controller) handleRegisterChat(id core.ClientID, user domain.UserID, conn *Conn, cmd command) {
	nickname := strings.TrimSpace(cmd.Nickname)
	if err := domain.ValidateNickname(nickname); err != nil {
		ctl.sendError(conn, "invalid_nickname")
		return
	}
	if cmd.Room <= 0 {
		ctl.sendError(conn, "invalid_room")
		return
	}
	log.Info().Str("module", "ws").Str("cid", string(id)).Int64("room", int64(cmd.Room)).Msg("register to chat")
	if err := ctl.relay.RegisterToRoom(id, user, conn, nickname, cmd.Room); err != nil {
		if errors.Is(err, app.ErrNicknameTaken) {
			ctl.sendError(conn, "nickname_taken")
			return
		}
		ctl.sendError(conn, "register_failed")
	}
}

func (ctl *Controller) handleSend(id core.ClientID, conn *Conn, cmd command) {
	if !ctl.limiter.Allow(id) {
		ctl.sendError(conn, "rate_limited")
		return
	}
	if strings.TrimSpace(cmd.Text) == "" {
		ctl.sendError(conn, "empty_message")
		return
	}
	err := ctl.relay.Send(id, cmd.Text)
	switch {
	case errors.Is(err, app.ErrNotInRoom):
		// Fall back to the legacy global conversation for room-less clients.
		err = ctl.relay.SendGlobal(id, cmd.Text)
	}
	if errors.Is(err, app.ErrUnknownClient) {
		ctl.sendError(conn, "not_registered")
	}
}

func (ctl *Controller) sendError(conn *Conn, code string) {
	b, err := json.Marshal(pushEnvelope{Type: "error", Error: code})
	if err != nil {
		return
	}
	_ = conn.trySend(b)
}
