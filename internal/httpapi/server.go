package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/hojokin/internal/agent"
	"github.com/ent0n29/hojokin/internal/chat"
	"github.com/ent0n29/hojokin/internal/config"
	"github.com/ent0n29/hojokin/internal/logging"
	"github.com/ent0n29/hojokin/internal/observability"
)

// ChatService runs chat turns and manages the stored thread.
type ChatService interface {
	Turn(ctx context.Context, req chat.Request, onEvent agent.EventHandler) (agent.Response, error)
	History(ctx context.Context) ([]chat.UIMessage, error)
	Clear(ctx context.Context) error
}

type Server struct {
	cfg       config.Config
	chat      ChatService
	metrics   *observability.Metrics
	storeMode string
	upgrader  websocket.Upgrader
	static    http.Handler
}

func New(cfg config.Config, chatService ChatService, metrics *observability.Metrics, storeMode string) *Server {
	return &Server{
		cfg:       cfg,
		chat:      chatService,
		metrics:   metrics,
		storeMode: storeMode,
		static:    newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browsers may only drive the websocket from the same origin.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/api/perf/latency", s.handlePerfLatency)

	r.Post("/api/chat", s.handleChat)
	r.Get("/api/chat/history", s.handleHistory)
	r.Delete("/api/chat/clear", s.handleClear)
	r.Get("/api/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"agent":      s.cfg.AgentName,
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "chat service not configured")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"agent":      s.cfg.AgentName,
		"store_mode": s.storeMode,
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", "request body must be a JSON object with messages")
		return
	}

	ds := newDataStreamWriter(w)
	_, err := s.chat.Turn(r.Context(), req, ds.Write)
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	if ds.Started() {
		// Headers are gone; the failure travels as a stream part.
		_ = ds.Error("チャットの処理中にエラーが発生しました")
		return
	}

	var bad *chat.BadRequestError
	if errors.As(err, &bad) {
		respondError(w, http.StatusBadRequest, "bad_request", bad.Reason)
		return
	}
	respondError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	messages, err := s.chat.History(r.Context())
	if err != nil {
		logging.FromCtx(r.Context()).Error().Err(err).Msg("chat history failed")
		messages = nil
	}
	if messages == nil {
		messages = []chat.UIMessage{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.Clear(r.Context()); err != nil {
		logging.FromCtx(r.Context()).Error().Err(err).Msg("chat clear failed")
		respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: code, Message: message})
}
