package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/feeled/internal/auth"
	"github.com/snappy-loop/feeled/internal/catalog"
	"github.com/snappy-loop/feeled/internal/models"
	"github.com/snappy-loop/feeled/internal/session"
)

const (
	sessionWSReadLimit    = 64 << 10
	sessionWSPongWait     = 70 * time.Second
	sessionWSPingInterval = 30 * time.Second
	sessionWSWriteWait    = 30 * time.Second
)

var sessionWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// sessionWSInMessage is the JSON shape sent from the page.
type sessionWSInMessage struct {
	Type    string               `json:"type"` // "submit" or "try_another"
	Request *models.StoryRequest `json:"request,omitempty"`
}

// sessionWSOutMessage is the JSON shape pushed to the page.
type sessionWSOutMessage struct {
	Type  string         `json:"type"` // "state" or "error"
	State *session.State `json:"state,omitempty"`
	Error string         `json:"error,omitempty"`
	Field string         `json:"field,omitempty"`
}

// latestState keeps only the newest state; intermediate ones are safe to skip.
type latestState struct {
	mu     sync.Mutex
	state  *session.State
	notify chan struct{}
}

func (l *latestState) put(st session.State) {
	l.mu.Lock()
	l.state = &st
	l.mu.Unlock()
	select {
	case l.notify <- struct{}{}:
	default:
	}
}

func (l *latestState) take() *session.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state
	l.state = nil
	return st
}

// SessionWS handles GET /session/ws: one orchestrator per connection, every
// transition pushed to the page as it happens.
func (h *Handler) SessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := sessionWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("session ws upgrade failed")
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	h.metrics.SessionOpened()
	defer h.metrics.SessionClosed()
	log.Info().
		Str("session_id", id).
		Str("remote_addr", r.RemoteAddr).
		Bool("authenticated", auth.IsAuthenticated(r.Context())).
		Msg("Live session opened")

	orch := h.newSession()
	states := &latestState{notify: make(chan struct{}, 1)}
	replies := make(chan sessionWSOutMessage, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		defer conn.Close() // unblocks the read loop if the writer gives up
		h.sessionWriter(conn, states, replies, done)
	}()

	reply := func(out sessionWSOutMessage) {
		select {
		case replies <- out:
		case <-writerDone:
		}
	}

	unsubscribe := orch.Subscribe(states.put)
	defer func() {
		unsubscribe()
		orch.TryAnother() // late results for this connection are dropped
		close(done)
		<-writerDone
		log.Info().Str("session_id", id).Msg("Live session closed")
	}()

	conn.SetReadLimit(sessionWSReadLimit)
	conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("session_id", id).Msg("session ws read")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(sessionWSPongWait))

		var in sessionWSInMessage
		if err := json.Unmarshal(raw, &in); err != nil {
			reply(sessionWSOutMessage{Type: "error", Error: "invalid JSON: " + err.Error()})
			continue
		}

		switch in.Type {
		case "submit":
			if in.Request == nil {
				reply(sessionWSOutMessage{Type: "error", Error: "request required"})
				continue
			}
			if h.limiter != nil && !h.limiter.Allow() {
				h.metrics.IncRateLimited()
				log.Warn().Str("session_id", id).Msg("Rate limit exceeded")
				reply(sessionWSOutMessage{Type: "error", Error: rateLimitedMessage})
				continue
			}
			if _, err := orch.Submit(*in.Request); err != nil {
				out := sessionWSOutMessage{Type: "error", Error: err.Error()}
				var vErr *catalog.ValidationError
				if errors.As(err, &vErr) {
					out.Field = vErr.Field
				}
				reply(out)
			}
		case "try_another":
			orch.TryAnother()
		default:
			reply(sessionWSOutMessage{Type: "error", Error: "expected type: submit or try_another"})
		}
	}
}

// sessionWriter is the only goroutine that writes to conn.
func (h *Handler) sessionWriter(conn *websocket.Conn, states *latestState, replies <-chan sessionWSOutMessage, done <-chan struct{}) {
	ping := time.NewTicker(sessionWSPingInterval)
	defer ping.Stop()

	for {
		var out sessionWSOutMessage
		select {
		case <-done:
			return
		case <-states.notify:
			st := states.take()
			if st == nil {
				continue
			}
			out = sessionWSOutMessage{Type: "state", State: st}
		case out = <-replies:
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Msg("session ws ping")
				return
			}
			continue
		}
		if err := writeWSJSON(conn, out); err != nil {
			log.Debug().Err(err).Msg("session ws write")
			return
		}
	}
}

func writeWSJSON(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(sessionWSWriteWait))
	return conn.WriteJSON(v)
}
