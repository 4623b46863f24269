// Package web provides the HTTP status and command server for the
// kiln-control daemon.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sweeney/kiln-control/internal/status"
)

// maxCommandBody bounds POST bodies; commands are a single number.
const maxCommandBody = 64

// Commander accepts operator commands. The control loop implements it;
// commands take effect at the next tick boundary.
type Commander interface {
	SetSetpoint(celsius float64)
	SetPowerDirect(pct float64)
	RequestShutdown()
}

// Server serves the status page and command endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commander  Commander
}

// New creates a Server reading state from tracker and routing commands
// to commander. commander may be nil, in which case the command
// endpoints return 503.
func New(addr string, tracker *status.Tracker, commander Commander) *Server {
	s := &Server{tracker: tracker, commander: commander}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/setpoint", s.handleSetpoint)
	mux.HandleFunc("/power", s.handlePower)
	mux.HandleFunc("/shutdown", s.handleShutdown)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	v, ok := s.commandValue(w, r)
	if !ok {
		return
	}
	s.commander.SetSetpoint(v)
	fmt.Fprintf(w, "setpoint %.1f accepted\n", v)
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	v, ok := s.commandValue(w, r)
	if !ok {
		return
	}
	s.commander.SetPowerDirect(v)
	fmt.Fprintf(w, "power %.1f accepted\n", v)
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if s.commander == nil {
		http.Error(w, "no controller attached", http.StatusServiceUnavailable)
		return
	}
	s.commander.RequestShutdown()
	fmt.Fprintln(w, "shutdown requested")
}

// commandValue validates the request and parses its numeric body.
// On failure it writes the error response and returns ok=false.
func (s *Server) commandValue(w http.ResponseWriter, r *http.Request) (float64, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return 0, false
	}
	if s.commander == nil {
		http.Error(w, "no controller attached", http.StatusServiceUnavailable)
		return 0, false
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(body)), 64)
	if err != nil {
		http.Error(w, "body must be a number", http.StatusBadRequest)
		return 0, false
	}
	return v, true
}
