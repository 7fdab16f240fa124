// Package web provides the HTTP status page and REST API for the sousvide daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"runtime/debug"

	"github.com/sweeney/sousvide/internal/control"
	"github.com/sweeney/sousvide/internal/status"
	"github.com/sweeney/sousvide/internal/temp"
)

// Controller is the part of the control loop the REST API touches.
// *control.Controller implements it.
type Controller interface {
	Snapshot() control.State
	ChangeSetpoint(v float64)
	ClearSetpoint()
}

// StateJSON is the body of GET /rest/state.
type StateJSON struct {
	Heater  bool         `json:"heater"`
	Pump    bool         `json:"pump"`
	CurTemp temp.Reading `json:"cur_temp"`
	SetTemp temp.Reading `json:"set_temp"`
}

// SetpointRequest is the body of PUT /rest/state/set_temp.
type SetpointRequest struct {
	Value float64 `json:"value"`
}

// Server serves the status page and REST API over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	ctl        Controller
}

// New creates a Server that reads daemon state from tracker and control
// state from ctl.
func New(addr string, tracker *status.Tracker, ctl Controller) *Server {
	s := &Server{tracker: tracker, ctl: ctl}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/rest/state", s.handleState)
	mux.HandleFunc("/rest/state/", s.handleStateField)
	mux.HandleFunc("/rest/version", s.handleVersion)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
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

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	st := s.ctl.Snapshot()
	writeJSON(w, StateJSON{
		Heater:  st.Heater,
		Pump:    st.Pump,
		CurTemp: st.Current,
		SetTemp: st.Setpoint,
	})
}

func (s *Server) handleStateField(w http.ResponseWriter, r *http.Request) {
	field := r.URL.Path[len("/rest/state/"):]

	if field == "set_temp" && r.Method == http.MethodPut {
		s.putSetpoint(w, r)
		return
	}
	if r.Method != http.MethodGet {
		if field == "set_temp" {
			methodNotAllowed(w, http.MethodGet+", "+http.MethodPut)
		} else {
			methodNotAllowed(w, http.MethodGet)
		}
		return
	}

	st := s.ctl.Snapshot()
	switch field {
	case "heater":
		writeJSON(w, st.Heater)
	case "pump":
		writeJSON(w, st.Pump)
	case "cur_temp":
		writeJSON(w, st.Current)
	case "set_temp":
		writeJSON(w, st.Setpoint)
	default:
		http.NotFound(w, r)
	}
}

// putSetpoint changes the setpoint. A body that does not decode to
// {"value": <number>} clears it.
func (s *Server) putSetpoint(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Value == nil {
		s.ctl.ClearSetpoint()
	} else {
		s.ctl.ChangeSetpoint(*body.Value)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, Version())
}

// Version returns the VCS revision the binary was built from, or "unknown".
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value
		}
	}
	return "unknown"
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
