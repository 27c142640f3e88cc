package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/domain"
)

// WSHandler upgrades clients into a conversation topic: chat messages are
// offered to the quiz engine first and rebroadcast as plain chat when no
// question is outstanding; quiz commands map onto the engine's operations.
type WSHandler struct {
	service  *app.QuizService
	hub      *Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewWSHandler(service *app.QuizService, hub *Hub, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		log: log.With().Str("component", "ws").Logger(),
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type textPayload struct {
	Text string `json:"text"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the quiz
// engine and the topic's announcement stream.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conversationID, err := strconv.ParseInt(r.URL.Query().Get("conversationId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid conversationId", http.StatusBadRequest)
		return
	}
	topicID, err := strconv.ParseInt(r.URL.Query().Get("topicId"), 10, 64)
	if err != nil {
		http.Error(w, "missing or invalid topicId", http.StatusBadRequest)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	key := domain.TopicKey{ConversationID: conversationID, TopicID: topicID}
	announcements, cancel := h.hub.Subscribe(key)
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	announceDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Error().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(announceDone)
		for {
			select {
			case text, ok := <-announcements:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "announcement", Payload: textPayload{Text: text}}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: textPayload{Text: fmt.Sprintf("joined topic %d/%d", conversationID, topicID)}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "chat":
			var payload textPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Text == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid chat payload"}}
				continue
			}
			handled, err := h.service.SubmitAnswer(r.Context(), conversationID, topicID, userID, payload.Text)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			if !handled {
				// not a quiz answer: ordinary chat
				_ = h.hub.Send(r.Context(), conversationID, topicID, userID+": "+payload.Text)
			}
		case "startQuiz":
			if _, err := h.service.StartQuiz(r.Context(), conversationID, topicID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: conflictMessage(err)}}
			}
		case "stopQuiz":
			if err := h.service.StopQuiz(r.Context(), conversationID, topicID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: conflictMessage(err)}}
				continue
			}
			_ = h.hub.Send(r.Context(), conversationID, topicID, "The quiz was stopped.")
		case "resetUsedQuestions":
			count, err := h.service.ResetUsedQuestions(r.Context(), conversationID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "info", Payload: textPayload{Text: fmt.Sprintf("reset %d used questions", count)}}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-announceDone
	close(send)
	<-writerDone
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizAlreadyActive), errors.Is(err, domain.ErrNoActiveQuiz):
		return err.Error()
	default:
		return "internal error"
	}
}
