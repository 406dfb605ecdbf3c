package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/chat"
	"github.com/ent0n29/hojokin/internal/logging"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsIdleTimeout  = 120 * time.Second
)

// handleChatWS runs chat turns over a websocket. Each text frame carries a
// chat request; turns run one at a time and every agent event is sent back
// as a JSON frame.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.WSConnections.Inc()
		defer s.metrics.WSConnections.Dec()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	logger := logging.FromCtx(ctx)

	send := func(ev agent.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(ev)
	}

	conn.SetReadLimit(s.cfg.MaxBodyBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var req chat.Request
		if err := json.Unmarshal(data, &req); err != nil {
			if send(agent.Event{Type: agent.EventError, Error: "invalid chat frame"}) != nil {
				return
			}
			continue
		}

		if _, err := s.chat.Turn(ctx, req, send); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			msg := "チャットの処理中にエラーが発生しました"
			var bad *chat.BadRequestError
			if errors.As(err, &bad) {
				msg = bad.Reason
			}
			logger.Warn().Err(err).Msg("websocket chat turn failed")
			if send(agent.Event{Type: agent.EventError, Error: msg}) != nil {
				return
			}
		}
	}
}
