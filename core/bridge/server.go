package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/robonet-io/armbridge/core/controller"
	"github.com/robonet-io/armbridge/core/infra/buildinfo"
	"github.com/robonet-io/armbridge/core/infra/bus"
	"github.com/robonet-io/armbridge/core/infra/logging"
)

const envAllowedOrigins = "ARMBRIDGE_ALLOWED_ORIGINS"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return isAllowedOrigin(r) },
}

// Server carries the editor's message channel over a websocket endpoint.
type Server struct {
	router    *Router
	ctrl      controller.Controller
	announcer *bus.Announcer
	srv       *http.Server
}

// NewServer constructs the HTTP surface: /channel (the message channel),
// /status, and /healthz. announcer may be nil when NATS is not configured.
func NewServer(router *Router, ctrl controller.Controller, announcer *bus.Announcer, addr string) *Server {
	s := &Server{router: router, ctrl: ctrl, announcer: announcer}
	mux := http.NewServeMux()
	mux.HandleFunc("/channel", s.handleChannel)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.srv = &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 0, // websocket connections are long-lived
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the endpoint until Shutdown.
func (s *Server) ListenAndServe() error {
	logging.Info("bridge", "editor channel listening", "addr", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Shutdown drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleChannel upgrades to a websocket and runs the read loop. Messages
// dispatch synchronously: the next read happens only after the previous
// command ran to completion.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("bridge", "ws upgrade failed", "error", err)
		return
	}
	defer ws.Close()
	logging.Info("bridge", "editor connected", "remote", r.RemoteAddr)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			logging.Info("bridge", "editor disconnected", "remote", r.RemoteAddr)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		reply, ok := s.router.Handle(r.Context(), string(data))
		if !ok {
			continue
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			logging.Error("bridge", "reply write failed", "error", err)
			return
		}
	}
}

type statusPayload struct {
	Version      string `json:"version"`
	Controller   string `json:"controller"`
	SelectedTask string `json:"selected_task"`
	BusConnected bool   `json:"bus_connected"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		Version:      buildinfo.Version,
		Controller:   s.ctrl.Kind(),
		SelectedTask: string(s.router.SelectedTask()),
		BusConnected: s.announcer.IsConnected(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("bridge", "status encode failed", "error", err)
	}
}

func isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// The embedded editor page and non-browser clients omit Origin.
		return true
	}
	raw := strings.TrimSpace(os.Getenv(envAllowedOrigins))
	if raw == "" || raw == "*" {
		return true
	}
	for _, allowed := range strings.Split(raw, ",") {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}
