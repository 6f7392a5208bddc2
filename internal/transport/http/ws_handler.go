package http

import (
	"encoding/json"
	"net/http"

	"challenge-engine/internal/app"
	"challenge-engine/internal/logger"
	"github.com/gorilla/websocket"
)

// WSHandler streams a challenge's live leaderboard and lets a participant drive
// their attempt over the same connection.
type WSHandler struct {
	participation *app.ParticipationService
	boards        *app.Leaderboards
	hub           *app.LeaderboardHub
	log           *logger.Logger
	upgrader      websocket.Upgrader
}

func NewWSHandler(participation *app.ParticipationService, boards *app.Leaderboards, hub *app.LeaderboardHub, log *logger.Logger) *WSHandler {
	return &WSHandler{
		participation: participation,
		boards:        boards,
		hub:           hub,
		log:           logger.OrNop(log),
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

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type wsError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades the request and wires the socket into the participation use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	challengeID := r.URL.Query().Get("challengeId")
	userID := r.URL.Query().Get("userId")
	if challengeID == "" || userID == "" {
		http.Error(w, "missing challengeId or userId", http.StatusBadRequest)
		return
	}

	snapshot, err := h.boards.Leaderboard(r.Context(), challengeID, 0)
	if err != nil {
		writeError(w, h.log, err, nil)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(challengeID)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// Single writer; gorilla connections do not support concurrent writes. A failed
	// write closes the connection so the read loop unblocks.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write failed", "challengeId", challengeID, "userId", userID, "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "leaderboard", Payload: snapshot}

	readLoop(
		func(in *inboundMessage) error { return conn.ReadJSON(in) },
		func(in inboundMessage) outboundMessage[any] { return h.dispatch(r, challengeID, userID, in) },
		send,
		writerDone,
	)

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// readLoop answers inbound messages until reading fails or the writer is gone.
func readLoop(read func(*inboundMessage) error, handle func(inboundMessage) outboundMessage[any], send chan<- outboundMessage[any], writerDone <-chan struct{}) {
	for {
		var inbound inboundMessage
		if err := read(&inbound); err != nil {
			return
		}
		select {
		case send <- handle(inbound):
		case <-writerDone:
			return
		}
	}
}

func (h *WSHandler) dispatch(r *http.Request, challengeID, userID string, inbound inboundMessage) outboundMessage[any] {
	ctx := r.Context()
	var (
		result any
		err    error
	)
	switch inbound.Type {
	case "join":
		result, err = h.participation.Join(ctx, challengeID, userID)
	case "start":
		result, err = h.participation.StartAttempt(ctx, challengeID, userID)
	case "answer":
		var in app.ResponseInput
		if err := json.Unmarshal(inbound.Payload, &in); err != nil {
			return outboundMessage[any]{Type: "error", Payload: wsError{Kind: "validation", Message: "invalid answer payload"}}
		}
		result, err = h.participation.SubmitResponse(ctx, challengeID, userID, in)
	case "complete":
		var in app.CompleteInput
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &in); err != nil {
				return outboundMessage[any]{Type: "error", Payload: wsError{Kind: "validation", Message: "invalid complete payload"}}
			}
		}
		result, err = h.participation.Complete(ctx, challengeID, userID, in)
	default:
		return outboundMessage[any]{Type: "error", Payload: wsError{Kind: "validation", Message: "unsupported message type"}}
	}
	if err != nil {
		_, kind := statusFor(err)
		return outboundMessage[any]{Type: "error", Payload: wsError{Kind: kind, Message: err.Error()}}
	}
	return outboundMessage[any]{Type: "participant", Payload: result}
}
