package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// GameService is the slice of the game controller the transport drives.
type GameService interface {
	CreateGame(ctx context.Context, req app.CreateGameRequest) (domain.Game, error)
	GameByCode(ctx context.Context, code string) (domain.Game, error)
	GameByID(ctx context.Context, id string) (domain.Game, error)
	Join(ctx context.Context, req app.JoinRequest) ([]domain.LeaderboardEntry, error)
	WatchGame(code, connID string)
	UnwatchGame(code, connID string)
	Start(ctx context.Context, gameID string, role domain.Role) error
	SubmitAnswer(ctx context.Context, req app.SubmitRequest) (domain.AnswerResult, error)
	HandleDisconnect(ctx context.Context, connID string)
}

type WSHandler struct {
	service  GameService
	hub      *Hub
	auth     *Authenticator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service GameService, hub *Hub, auth *Authenticator, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		hub:     hub,
		auth:    auth,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type joinPayload struct {
	GameCode string `json:"gameCode"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type watchPayload struct {
	GameCode string `json:"gameCode"`
}

type startPayload struct {
	GameID string `json:"gameId"`
}

type answerPayload struct {
	GameID     string `json:"gameId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	UserID     string `json:"userId"`
}

// ServeWS upgrades HTTP requests to websockets and routes their events into
// the game controller.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.Authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn, identity, h.logger)
	h.hub.register(c)
	if identity.Role == domain.RoleAdmin {
		h.hub.Subscribe(domain.AdminChannel, c.id)
	}
	c.logger.Debug("client connected", zap.String("userId", identity.UserID), zap.String("role", string(identity.Role)))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(func(msg inboundMessage) {
		h.dispatch(context.Background(), c, msg)
	})

	h.service.HandleDisconnect(context.Background(), c.id)
	h.hub.unregister(c)
	<-writerDone
	c.logger.Debug("client disconnected")
}

func (h *WSHandler) dispatch(ctx context.Context, c *client, msg inboundMessage) {
	switch msg.Type {
	case domain.EventPing:
		h.hub.Send(c.id, domain.EventPong, nil)

	case domain.EventJoinGame:
		var p joinPayload
		if !h.decode(c, msg, &p, "Failed to join game") {
			return
		}
		req := app.JoinRequest{
			Code:     p.GameCode,
			UserID:   firstNonEmpty(c.identity.UserID, p.UserID),
			Username: firstNonEmpty(c.identity.Username, p.Username),
			ConnID:   c.id,
		}
		if req.Code == "" || req.UserID == "" {
			h.sendError(c, "Failed to join game")
			return
		}
		if _, err := h.service.Join(ctx, req); err != nil {
			h.fail(c, err, "Failed to join game")
		}

	case domain.EventAdminJoinGame, domain.EventAdminLeaveGame:
		var p watchPayload
		if !h.decode(c, msg, &p, "Invalid game code") || p.GameCode == "" {
			return
		}
		if msg.Type == domain.EventAdminJoinGame {
			h.service.WatchGame(p.GameCode, c.id)
		} else {
			h.service.UnwatchGame(p.GameCode, c.id)
		}

	case domain.EventStartGame:
		var p startPayload
		if !h.decode(c, msg, &p, "Failed to start game") {
			return
		}
		if err := h.service.Start(ctx, p.GameID, c.identity.Role); err != nil {
			h.fail(c, err, "Failed to start game")
		}

	case domain.EventSubmitAnswer:
		var p answerPayload
		if !h.decode(c, msg, &p, "Failed to submit answer") {
			return
		}
		_, err := h.service.SubmitAnswer(ctx, app.SubmitRequest{
			GameID:     p.GameID,
			QuestionID: p.QuestionID,
			Answer:     p.Answer,
			UserID:     firstNonEmpty(c.identity.UserID, p.UserID),
			ConnID:     c.id,
		})
		if err != nil {
			h.fail(c, err, "Failed to submit answer")
		}

	default:
		h.sendError(c, "Unsupported message type")
	}
}

func (h *WSHandler) decode(c *client, msg inboundMessage, into any, fallback string) bool {
	if len(msg.Payload) == 0 {
		h.sendError(c, fallback)
		return false
	}
	if err := json.Unmarshal(msg.Payload, into); err != nil {
		h.sendError(c, fallback)
		return false
	}
	return true
}

// fail reports err to the client. Internal failures are logged and hidden
// behind fallback.
func (h *WSHandler) fail(c *client, err error, fallback string) {
	if domain.KindOf(err) == domain.KindInternal {
		c.logger.Error(fallback, zap.Error(err))
	}
	h.sendError(c, domain.PublicMessage(err, fallback))
}

func (h *WSHandler) sendError(c *client, message string) {
	h.hub.Send(c.id, domain.EventError, domain.ErrorPayload{Message: message})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
