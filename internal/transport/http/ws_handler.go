package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ardaongl/hsdarena-backend/internal/app"
	"github.com/ardaongl/hsdarena-backend/internal/auth"
)

// Inbound client message names.
const (
	msgJoinSession  = "join_session"
	msgLeaveSession = "leave_session"
	msgSubmitAnswer = "submit_answer"
)

// WSHandler upgrades authenticated team connections and wires them into the
// room registry and answer intake.
type WSHandler struct {
	coord    *app.Coordinator
	intake   *app.Intake
	rooms    *app.Registry
	tokens   *auth.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(coord *app.Coordinator, intake *app.Intake, rooms *app.Registry, tokens *auth.Service) *WSHandler {
	return &WSHandler{
		coord:  coord,
		intake: intake,
		rooms:  rooms,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinSessionData struct {
	SessionCode string `json:"sessionCode"`
}

type submitAnswerData struct {
	QuestionID string          `json:"questionId"`
	Payload    json.RawMessage `json:"answerPayload"`
}

// wsClient is the registry-facing side of one connection. Writes go through
// a buffered channel so one goroutine owns the socket; a full buffer counts
// as a failed send and the registry drops the event for this member only.
type wsClient struct {
	send chan []byte
}

func (c *wsClient) SendEvent(event string, payload any) error {
	raw, err := json.Marshal(struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: event, Data: payload})
	if err != nil {
		return err
	}
	select {
	case c.send <- raw:
		return nil
	default:
		return errors.New("send buffer full")
	}
}

// ServeWS authenticates the team token, upgrades the connection, and runs
// the read loop until the client disconnects.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.VerifyTeamToken(bearerToken(r))
	if err != nil {
		http.Error(w, "invalid or missing team token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	client := &wsClient{send: make(chan []byte, 32)}
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug().Err(err).Str("team", claims.TeamID).Msg("ws write error")
				return
			}
		}
	}()

	for {
		var inbound envelope
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Event {
		case msgJoinSession:
			h.handleJoin(r, client, claims, inbound.Data)
		case msgLeaveSession:
			h.rooms.Leave(client)
		case msgSubmitAnswer:
			h.handleSubmit(r, client, claims, inbound.Data)
		default:
			_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: "unsupported message type"})
		}
	}

	// Leave before closing send. The registry lock orders the leave after
	// any in-flight broadcast, so no delivery can hit a closed channel.
	h.rooms.Leave(client)
	close(client.send)
	<-writerDone
}

func (h *WSHandler) handleJoin(r *http.Request, client *wsClient, claims auth.TeamClaims, data json.RawMessage) {
	var payload joinSessionData
	if err := json.Unmarshal(data, &payload); err != nil || payload.SessionCode == "" {
		_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: "session code is required"})
		return
	}

	session, err := h.coord.SessionByCode(r.Context(), payload.SessionCode)
	if err != nil {
		_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: err.Error()})
		return
	}
	// The token binds the team to one session; joining another room with it
	// is a client error.
	if session.ID != claims.SessionID {
		_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: "token is not valid for this session"})
		return
	}

	h.rooms.Join(session.Code, client)
	_ = client.SendEvent(app.EventJoinSuccess, app.JoinSuccessPayload{SessionCode: session.Code})
}

func (h *WSHandler) handleSubmit(r *http.Request, client *wsClient, claims auth.TeamClaims, data json.RawMessage) {
	var payload submitAnswerData
	if err := json.Unmarshal(data, &payload); err != nil {
		_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: "invalid answer payload"})
		return
	}

	result, err := h.intake.Submit(r.Context(), claims.TeamID, app.SubmitRequest{
		SessionID:  claims.SessionID,
		QuestionID: payload.QuestionID,
		Payload:    payload.Payload,
	})
	if err != nil {
		_ = client.SendEvent(app.EventError, app.ErrorPayload{Message: err.Error()})
		return
	}
	_ = client.SendEvent("answer_result", result)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
