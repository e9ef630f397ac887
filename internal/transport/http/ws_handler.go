package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"classquiz-service/internal/app"
	"classquiz-service/internal/domain"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsPingInterval = 30 * time.Second
	wsPongWait     = 40 * time.Second
	wsWriteWait    = 10 * time.Second
	wsReadLimit    = 8 * 1024

	wsMessageRate  = rate.Limit(5)
	wsMessageBurst = 10
)

type WSHandler struct {
	coord    *app.Coordinator
	identity *IdentityResolver
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(coord *app.Coordinator, identity *IdentityResolver, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		coord:    coord,
		identity: identity,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int    `json:"questionIndex"`
	Answer        string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}

// ServeWS upgrades HTTP requests to websockets: the connection joins the room, receives every
// committed snapshot and may submit answers. Disconnecting does not remove the player.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		http.Error(w, "missing roomId", http.StatusBadRequest)
		return
	}
	id, err := h.identity.Resolve(r)
	if err != nil {
		http.Error(w, errUnauthenticated.Error(), http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	player, err := h.coord.JoinRoom(r.Context(), roomID, id.UserID, id.Name)
	if err != nil {
		_, msg := errorStatus(err)
		_ = conn.WriteJSON(errorMessage(msg))
		return
	}

	updates, cancel, err := h.coord.Subscribe(r.Context(), roomID)
	if err != nil {
		_, msg := errorStatus(err)
		_ = conn.WriteJSON(errorMessage(msg))
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections support one concurrent writer
	go func() {
		defer close(writerDone)
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			select {
			case msg, ok := <-send:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(msg); err != nil {
					h.logger.Debug("ws write error", "room_id", roomID, "user_id", id.UserID, "error", err)
					conn.Close()
					return
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	send <- outboundMessage[any]{Type: "joined", Payload: player}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "room", Payload: update}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	limiter := rate.NewLimiter(wsMessageRate, wsMessageBurst)
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !limiter.Allow() {
			if !push(errorMessage("too many messages")) {
				break
			}
			continue
		}
		var reply outboundMessage[any]
		switch inbound.Type {
		case "answer":
			reply = h.answer(r, player, inbound.Payload)
		default:
			reply = errorMessage("unsupported message type")
		}
		if !push(reply) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) answer(r *http.Request, player domain.Player, raw json.RawMessage) outboundMessage[any] {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return errorMessage("invalid answer payload")
	}
	result, err := h.coord.SubmitAnswer(r.Context(), player.ID, payload.QuestionIndex, payload.Answer)
	if err != nil {
		_, msg := errorStatus(err)
		return errorMessage(msg)
	}
	return outboundMessage[any]{Type: "answerResult", Payload: result}
}
