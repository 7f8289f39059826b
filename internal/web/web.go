package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/silasm01/calendar-manager/internal/config"
	appLog "github.com/silasm01/calendar-manager/internal/log"
	"github.com/silasm01/calendar-manager/internal/model"
	"github.com/silasm01/calendar-manager/internal/publish"
	"github.com/silasm01/calendar-manager/internal/store"
)

// Reconciler runs one reconciliation pass.
type Reconciler interface {
	Run(ctx context.Context, now time.Time) ([]model.ReconciledEvent, error)
}

// Approver publishes and retracts placeholder events.
type Approver interface {
	Approve(ctx context.Context, req publish.ApproveRequest) error
	RemoveApproval(ctx context.Context, uid string) error
}

// Settings is the slice of the settings store the API needs.
type Settings interface {
	AllBuffers(ctx context.Context) (map[model.BufferKey]model.Buffer, error)
	SetBuffer(ctx context.Context, key model.BufferKey, buf model.Buffer) error
	AllPrivacy(ctx context.Context) (map[string]store.Privacy, error)
	SetPrivacy(ctx context.Context, uid, source string, p store.Privacy) error
	IgnoredUIDs(ctx context.Context) ([]string, error)
	AddIgnored(ctx context.Context, uid string) error
	RemoveIgnored(ctx context.Context, uid string) error
}

// Server exposes the reconciliation engine and publisher over HTTP.
type Server struct {
	cfg      *config.Config
	engine   Reconciler
	pub      Approver
	settings Settings
	mux      *http.ServeMux
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, engine Reconciler, pub Approver, settings Settings) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		pub:      pub,
		settings: settings,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password counts as disabled.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calmanage", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/pending_events", s.handlePendingEvents)
	s.mux.HandleFunc("POST /api/approve", s.handleApprove)
	s.mux.HandleFunc("POST /api/remove-approval", s.handleRemoveApproval)
	s.mux.HandleFunc("GET /api/buffers", s.handleGetBuffers)
	s.mux.HandleFunc("POST /api/buffers", s.handleSaveBuffer)
	s.mux.HandleFunc("GET /api/privacy", s.handleGetPrivacy)
	s.mux.HandleFunc("POST /api/privacy", s.handleSavePrivacy)
	s.mux.HandleFunc("GET /api/ignored", s.handleGetIgnored)
	s.mux.HandleFunc("POST /api/ignored", s.handleAddIgnored)
	s.mux.HandleFunc("DELETE /api/ignored/{uid}", s.handleDeleteIgnored)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// resultResponse is the mutation envelope: 200 with success=true, or 400
// with success=false plus a reason.
type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handlePendingEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.engine.Run(r.Context(), time.Now())
	if err != nil {
		appLog.Error("pending events pass failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// approveBody is the request shape the front-end sends.
type approveBody struct {
	UID                   string `json:"uid"`
	Source                string `json:"source"`
	Start                 string `json:"start"`
	End                   string `json:"end"`
	Title                 string `json:"title"`
	Description           string `json:"description"`
	UseGenericTitle       bool   `json:"use_generic_title"`
	UseGenericDescription bool   `json:"use_generic_description"`
	BufferBefore          int    `json:"buffer_before"`
	BufferAfter           int    `json:"buffer_after"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var body approveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON body")
		return
	}

	start, err := parseInstant(body.Start)
	if err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid start time: "+body.Start)
		return
	}
	end, err := parseInstant(body.End)
	if err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid end time: "+body.End)
		return
	}

	req := publish.ApproveRequest{
		UID:                   body.UID,
		Source:                body.Source,
		Start:                 start,
		End:                   end,
		Title:                 body.Title,
		Description:           body.Description,
		UseGenericTitle:       body.UseGenericTitle,
		UseGenericDescription: body.UseGenericDescription,
		BufferBeforeMin:       body.BufferBefore,
		BufferAfterMin:        body.BufferAfter,
	}

	if err := s.pub.Approve(r.Context(), req); err != nil {
		writeResult(w, http.StatusBadRequest, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "Event approved and blocked events sent to other calendars")
}

func (s *Server) handleRemoveApproval(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON body")
		return
	}
	if body.UID == "" {
		writeResult(w, http.StatusBadRequest, false, "No UID provided")
		return
	}

	if err := s.pub.RemoveApproval(r.Context(), body.UID); err != nil {
		writeResult(w, http.StatusBadRequest, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "Event removed from all blocked calendars")
}

// bufferDTO is the per-UID buffer shape returned by GET /api/buffers.
type bufferDTO struct {
	Before int `json:"before"`
	After  int `json:"after"`
}

func (s *Server) handleGetBuffers(w http.ResponseWriter, r *http.Request) {
	buffers, err := s.settings.AllBuffers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Keyed by UID alone; with per-source duplicates the last row wins.
	out := make(map[string]bufferDTO, len(buffers))
	for key, buf := range buffers {
		out[key.UID] = bufferDTO{Before: buf.BeforeMin, After: buf.AfterMin}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSaveBuffer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID          string `json:"uid"`
		Source       string `json:"source"`
		BufferBefore int    `json:"buffer_before"`
		BufferAfter  int    `json:"buffer_after"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON body")
		return
	}
	if body.UID == "" {
		writeResult(w, http.StatusBadRequest, false, "No UID provided")
		return
	}

	key := model.BufferKey{UID: body.UID, Source: body.Source}
	buf := model.Buffer{BeforeMin: body.BufferBefore, AfterMin: body.BufferAfter}
	if err := s.settings.SetBuffer(r.Context(), key, buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

func (s *Server) handleGetPrivacy(w http.ResponseWriter, r *http.Request) {
	privacy, err := s.settings.AllPrivacy(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, privacy)
}

func (s *Server) handleSavePrivacy(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID                   string `json:"uid"`
		Source                string `json:"source"`
		UseGenericTitle       bool   `json:"use_generic_title"`
		UseGenericDescription bool   `json:"use_generic_description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON body")
		return
	}
	if body.UID == "" {
		writeResult(w, http.StatusBadRequest, false, "No UID provided")
		return
	}

	p := store.Privacy{
		UseGenericTitle:       body.UseGenericTitle,
		UseGenericDescription: body.UseGenericDescription,
	}
	if err := s.settings.SetPrivacy(r.Context(), body.UID, body.Source, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

func (s *Server) handleGetIgnored(w http.ResponseWriter, r *http.Request) {
	uids, err := s.settings.IgnoredUIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, uids)
}

func (s *Server) handleAddIgnored(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeResult(w, http.StatusBadRequest, false, "invalid JSON body")
		return
	}
	if body.UID == "" {
		writeResult(w, http.StatusBadRequest, false, "No UID provided")
		return
	}
	if err := s.settings.AddIgnored(r.Context(), body.UID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

func (s *Server) handleDeleteIgnored(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if uid == "" {
		writeResult(w, http.StatusBadRequest, false, "No UID provided")
		return
	}
	if err := s.settings.RemoveIgnored(r.Context(), uid); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

// parseInstant accepts RFC 3339 timestamps, tolerating a bare "Z" suffix
// variant and second-precision values as emitted by browser clients.
func parseInstant(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	// Fallback: no offset at all; read as UTC.
	return time.Parse("2006-01-02T15:04:05", v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

func writeResult(w http.ResponseWriter, status int, success bool, msg string) {
	writeJSON(w, status, resultResponse{Success: success, Message: msg})
}
