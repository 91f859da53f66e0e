// Package daemon provides the fleettuned monitoring daemon: it runs the
// poller headless and serves the derived snapshots to local UIs over HTTP
// and a websocket stream.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fleettune/fleettune/pkg/daemon/broadcaster"
	"github.com/fleettune/fleettune/pkg/tune/logging"
	"github.com/fleettune/fleettune/pkg/tune/poller"
)

// writeWait bounds a single websocket write to a slow client.
const writeWait = 5 * time.Second

// Server serves the monitor's derived state.
type Server struct {
	poller *poller.Poller
	bc     *broadcaster.Broadcaster
	http   *http.Server
	log    *logging.Logger

	upgrader websocket.Upgrader
}

// NewServer creates a Server around a running poller and its broadcaster.
func NewServer(p *poller.Poller, bc *broadcaster.Broadcaster, addr string) *Server {
	s := &Server{
		poller: p,
		bc:     bc,
		log:    logging.Get("daemon"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("POST /warnings/next", s.handleWarningNext)
	mux.HandleFunc("POST /warnings/dismiss", s.handleWarningDismiss)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.Info("listening", "addr", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve serves on an existing listener. Used by tests.
func (s *Server) Serve(ln net.Listener) error {
	err := s.http.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// handleStatus returns the latest derived snapshot as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.poller.Latest()); err != nil {
		s.log.Warn("status encode failed", "error", err)
	}
}

// handleHealthz is a liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// handleWarningNext promotes the next queued warning to the active slot
// and returns it. Responds 204 when the queue is empty.
func (s *Server) handleWarningNext(w http.ResponseWriter, r *http.Request) {
	ev, ok := s.poller.Alerter().Next()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ev); err != nil {
		s.log.Warn("warning encode failed", "error", err)
	}
}

// handleWarningDismiss dismisses the active warning. With ?forever=true the
// dismissal is persisted and the warning never re-raises.
func (s *Server) handleWarningDismiss(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("forever") == "true" {
		if err := s.poller.Alerter().DismissForever(); err != nil {
			s.log.Warn("persisting dismissal failed", "error", err)
			http.Error(w, "persisting dismissal failed", http.StatusInternalServerError)
			return
		}
	} else {
		s.poller.Alerter().Dismiss()
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleWS upgrades to a websocket and streams broadcaster messages. The
// latest snapshot is sent immediately so a new client never starts blank.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bc.Subscribe()
	if sub == nil {
		return
	}
	defer s.bc.Unsubscribe(sub.ID)

	snap := s.poller.Latest()
	first := broadcaster.Message{Kind: broadcaster.KindSnapshot, Snapshot: &snap}
	if err := s.writeMessage(conn, first); err != nil {
		return
	}

	// Discard client reads; this stream is one-way. The read loop also
	// notices a closed connection so the writer below can exit.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case msg, ok := <-sub.Messages:
			if !ok {
				return
			}
			if err := s.writeMessage(conn, msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeMessage(conn *websocket.Conn, msg broadcaster.Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		s.log.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}
