// Package api serves the lock's HTTP surface: command submission, live
// event streaming, status, audit queries, and a usage chart.
//
// The handlers never touch the servo directly. Commands go through the
// same admission gate as BLE writes, so HTTP callers and centrals
// compete on equal terms.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/hs-CN/remote-servo-controllor/internal/blemux"
	"github.com/hs-CN/remote-servo-controllor/internal/config"
	"github.com/hs-CN/remote-servo-controllor/internal/db"
	"github.com/hs-CN/remote-servo-controllor/internal/httputil"
	"github.com/hs-CN/remote-servo-controllor/internal/lock"
	"github.com/hs-CN/remote-servo-controllor/internal/timeutil"
	"github.com/hs-CN/remote-servo-controllor/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// keepaliveInterval paces SSE comment pings so idle event streams
// survive proxy timeouts.
const keepaliveInterval = 30 * time.Second

// LockController is the slice of *lock.Controller the HTTP layer needs.
type LockController interface {
	TrySubmit(payload []byte, source string) bool
	Status() lock.Status
	Subscribe() (string, chan lock.Event)
	Unsubscribe(id string)
}

type Server struct {
	lock  LockController
	db    *db.DB
	ble   *blemux.Mux
	cfg   *config.LockConfig
	clock timeutil.Clock
}

// NewServer wires the HTTP layer to the controller and its audit store.
// ble may be nil when the radio is not running; the status handler then
// omits radio counters.
func NewServer(lc LockController, database *db.DB, ble *blemux.Mux, cfg *config.LockConfig) *Server {
	if cfg == nil {
		cfg = config.DefaultLockConfig()
	}
	return &Server{
		lock:  lc,
		db:    database,
		ble:   ble,
		cfg:   cfg,
		clock: timeutil.RealClock{},
	}
}

// SetClock replaces the server's clock. Tests use this to drive the SSE
// keepalive ticker.
func (s *Server) SetClock(c timeutil.Clock) {
	s.clock = c
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
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
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
	mux.HandleFunc("/", s.showControlPanel)
	mux.HandleFunc("/command", s.sendCommandHandler)
	mux.HandleFunc("/events", s.streamEvents)
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/actuations", s.listActuations)
	mux.HandleFunc("/api/rejections", s.listRejections)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/usage/chart", s.showUsageChart)
	return mux
}

func (s *Server) sendCommandHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	command := r.FormValue("command")
	if command == "" {
		http.Error(w, "Missing command", http.StatusBadRequest)
		return
	}

	if !s.lock.TrySubmit([]byte(command), lock.SourceHTTP) {
		// the actuator is mid-sequence; the caller retries once it has
		// settled rather than queueing behind an unknown wait
		s.writeJSONError(w, http.StatusConflict, "Lock is busy")
		return
	}
	io.WriteString(w, "Command accepted")
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// StatusResponse aggregates the controller snapshot with build and
// radio information for the /api/status endpoint.
type StatusResponse struct {
	Lock    lock.Status   `json:"lock"`
	BLE     *blemux.Stats `json:"ble,omitempty"`
	Version string        `json:"version"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	resp := StatusResponse{
		Lock:    s.lock.Status(),
		Version: version.String(),
	}
	if s.ble != nil {
		stats := s.ble.Stats()
		resp.BLE = &stats
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

// parseDaysParam reads the "days" query parameter, falling back to the
// configured audit window. Zero is not accepted: an unbounded listing
// goes through days large enough to cover the deployment's lifetime.
func (s *Server) parseDaysParam(r *http.Request) (int, error) {
	days := s.cfg.GetAuditDays()
	if d := r.URL.Query().Get("days"); d != "" {
		parsedDays, err := strconv.Atoi(d)
		if err != nil || parsedDays < 1 {
			return 0, fmt.Errorf("invalid 'days' parameter")
		}
		days = parsedDays
	}
	return days, nil
}

func parseLimitParam(r *http.Request) (int, error) {
	limit := 0 // store default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsedLimit, err := strconv.Atoi(l)
		if err != nil || parsedLimit < 1 {
			return 0, fmt.Errorf("invalid 'limit' parameter")
		}
		limit = parsedLimit
	}
	return limit, nil
}

func (s *Server) listActuations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	days, err := s.parseDaysParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'days' parameter")
		return
	}
	limit, err := parseLimitParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	actuations, err := s.db.Actuations(days, limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve actuations: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(actuations); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write actuations")
		return
	}
}

func (s *Server) listRejections(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit, err := parseLimitParam(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
		return
	}

	rejections, err := s.db.Rejections(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve rejections: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(rejections); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write rejections")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	// effective values, not the raw file: nil pointers have already
	// collapsed to their defaults here
	cfg := map[string]interface{}{
		"dwell_ms":      s.cfg.GetDwell().Milliseconds(),
		"settle_ms":     s.cfg.GetSettle().Milliseconds(),
		"rest_degree":   s.cfg.GetRestDegree(),
		"duty_offset":   s.cfg.GetDutyOffset(),
		"status_period": s.cfg.GetStatusPeriod().String(),
		"audit_days":    s.cfg.GetAuditDays(),
	}

	if err := json.NewEncoder(w).Encode(cfg); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

// streamEvents pushes controller events to the client as server-sent
// events until the client goes away. A comment ping flows every
// keepaliveInterval so idle streams keep their connection.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sse, err := httputil.NewSSEWriter(w)
	if err != nil {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	ticker := s.clock.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	id, events := s.lock.Subscribe()
	defer s.lock.Unsubscribe(id)

	sse.Comment("ping")

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C():
			if err := sse.Comment("ping"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.SendJSON(ev); err != nil {
				return
			}
		}
	}
}
