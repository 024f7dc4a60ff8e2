// Package api serves the coach's JSON status API.
package api

import (
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trackcoach/internal/db"
	"github.com/banshee-data/trackcoach/internal/httputil"
	"github.com/banshee-data/trackcoach/internal/serialmux"
	"github.com/banshee-data/trackcoach/internal/service"
	"github.com/banshee-data/trackcoach/internal/timeutil"
	"github.com/banshee-data/trackcoach/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// DefaultCueLimit is the number of cues /api/cues returns without ?limit.
const DefaultCueLimit = 50

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 4096

// Sessions is the session control surface of service.Service.
type Sessions interface {
	Status() service.Status
	SetEnabled(enabled bool) error
}

// CueLog lists logged cues.
type CueLog interface {
	RecentCues(sessionID string, limit int) ([]db.StoredCue, error)
}

var (
	_ Sessions = (*service.Service)(nil)
	_ CueLog   = (*db.DB)(nil)
)

// Server holds the dependencies of the HTTP handlers. Cues, Serial and
// Connected are optional.
type Server struct {
	sessions  Sessions
	cues      CueLog
	serial    serialmux.LineSource
	connected func() bool
}

// Option configures a Server.
type Option func(*Server)

// WithCueLog enables /api/cues.
func WithCueLog(c CueLog) Option { return func(s *Server) { s.cues = c } }

// WithSerial enables /debug/serial/tail.
func WithSerial(src serialmux.LineSource) Option { return func(s *Server) { s.serial = src } }

// WithConnected reports the transport connection state in /api/status.
func WithConnected(fn func() bool) Option { return func(s *Server) { s.connected = fn } }

func NewServer(sessions Sessions, opts ...Option) *Server {
	s := &Server{sessions: sessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/session", s.updateSession)
	mux.HandleFunc("/api/cues", s.listCues)
	if s.serial != nil {
		mux.Handle("/debug/serial/tail", serialmux.TailHandler(s.serial))
	}
	return mux
}

type statusResponse struct {
	service.Status
	Version   string `json:"version"`
	Connected *bool  `json:"mqtt_connected,omitempty"`
}

func (s *Server) status() statusResponse {
	resp := statusResponse{Status: s.sessions.Status(), Version: version.String()}
	if s.connected != nil {
		up := s.connected()
		resp.Connected = &up
	}
	return resp
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

// updateSession accepts the same payloads as the MQTT control topic.
func (s *Server) updateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.BadRequest(w, "request body too large")
		return
	}
	enabled, err := service.ParseControl(body)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err := s.sessions.SetEnabled(enabled); err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.status())
}

type cuesResponse struct {
	SessionID string        `json:"session_id,omitempty"`
	Cues      []cueResponse `json:"cues"`
}

type cueResponse struct {
	db.StoredCue
	Time string `json:"time"`
}

// listCues returns recent cues for ?session_id, defaulting to the running
// session. ?all=true, or no running session, lists across sessions.
func (s *Server) listCues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if s.cues == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "cue log disabled")
		return
	}

	limit, ok := httputil.QueryInt(r, "limit", DefaultCueLimit)
	if !ok || limit < 1 {
		httputil.BadRequest(w, "limit must be a positive integer")
		return
	}
	if limit > db.MaxCueQueryLimit {
		limit = db.MaxCueQueryLimit
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" && r.URL.Query().Get("all") != "true" {
		sessionID = s.sessions.Status().SessionID
	}

	stored, err := s.cues.RecentCues(sessionID, limit)
	if err != nil {
		log.Printf("failed to list cues: %v", err)
		httputil.InternalServerError(w, "failed to list cues")
		return
	}

	resp := cuesResponse{SessionID: sessionID, Cues: make([]cueResponse, 0, len(stored))}
	for _, c := range stored {
		resp.Cues = append(resp.Cues, cueResponse{
			StoredCue: c,
			Time:      timeutil.FromUnixSeconds(c.TS).UTC().Format(time.RFC3339Nano),
		})
	}
	httputil.WriteJSONOK(w, resp)
}

