// Package api exposes the sync engine over HTTP for the dashboard: one
// command endpoint plus queue, audit, and status surfaces. The principal is
// taken from the X-Principal-ID header; requests without one are rejected
// before any work happens.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/dealerops/sheetbridge/access"
	"github.com/dealerops/sheetbridge/command"
	"github.com/dealerops/sheetbridge/dispatch"
	"github.com/dealerops/sheetbridge/engine"
	"github.com/dealerops/sheetbridge/sheets"
)

// PrincipalHeader carries the authenticated caller's id. Authentication
// itself happens upstream; this service trusts the header.
const PrincipalHeader = "X-Principal-ID"

// Server handles dashboard requests against one Engine.
type Server struct {
	engine *engine.Engine
	mux    *http.ServeMux
}

// NewServer returns a ready-to-serve Server.
func NewServer(e *engine.Engine) *Server {
	s := &Server{engine: e, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/command", s.handleCommand)
	s.mux.HandleFunc("GET /api/queue", s.handleQueueList)
	s.mux.HandleFunc("GET /api/queue/count", s.handleQueueCount)
	s.mux.HandleFunc("POST /api/queue/process", s.handleQueueProcess)
	s.mux.HandleFunc("DELETE /api/queue/{id}", s.handleQueueRemove)
	s.mux.HandleFunc("DELETE /api/queue", s.handleQueueClear)
	s.mux.HandleFunc("GET /api/audit", s.handleAuditList)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if id := r.Header.Get(PrincipalHeader); id != "" {
		r = r.WithContext(WithPrincipal(r.Context(), &Principal{ID: id}))
	}
	s.mux.ServeHTTP(w, r)
}

// commandRequest is the dashboard's wire form of a mutation.
type commandRequest struct {
	Action           string           `json:"action"`
	Entity           string           `json:"entity,omitempty"`
	Target           string           `json:"target,omitempty"`
	RemoteStoreID    string           `json:"remoteStoreId,omitempty"`
	ScopeID          string           `json:"scopeId,omitempty"`
	Record           map[string]any   `json:"record,omitempty"`
	Records          []map[string]any `json:"records,omitempty"`
	Values           []any            `json:"values,omitempty"`
	Grid             [][]any          `json:"grid,omitempty"`
	RowIndex         *int             `json:"rowIndex,omitempty"`
	MatchColumn      string           `json:"matchColumn,omitempty"`
	MatchValue       string           `json:"matchValue,omitempty"`
	MatchColumnIndex *int             `json:"matchColumnIndex,omitempty"`
}

// operationForAction maps wire action names onto operations. Most actions
// share the operation's name; list_sheets is the dashboard's legacy spelling.
func operationForAction(action string) command.Operation {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "list_sheets" {
		return command.OpList
	}
	return command.Operation(action)
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	principal := PrincipalFromContext(r.Context())
	if principal == nil {
		writeError(w, http.StatusUnauthorized, "missing "+PrincipalHeader+" header")
		return
	}

	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	m := command.Mutation{
		Operation:        operationForAction(req.Action),
		Entity:           req.Entity,
		Target:           req.Target,
		SpreadsheetID:    req.RemoteStoreID,
		Record:           req.Record,
		Records:          req.Records,
		Values:           req.Values,
		Grid:             req.Grid,
		RowIndex:         req.RowIndex,
		MatchColumn:      req.MatchColumn,
		MatchValue:       req.MatchValue,
		MatchColumnIndex: req.MatchColumnIndex,
	}

	out, err := s.engine.Apply(r.Context(), principal.ID, req.ScopeID, m)
	if err != nil {
		s.writeCommandError(w, err)
		return
	}

	switch out.Status {
	case dispatch.StatusQueued:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "queued",
			"queueId": out.QueueID,
		})
	case dispatch.StatusDelivered:
		status := http.StatusCreated
		if m.Operation.Class() == command.ClassRead {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{
			"status": "delivered",
			"result": out.Result,
		})
	default:
		// Dispatch never returns a rejected outcome without an error.
		writeError(w, http.StatusInternalServerError, "unexpected dispatch state")
	}
}

func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	var (
		roleErr   *access.InsufficientRoleError
		notFound  *sheets.NotFoundError
		remoteErr *sheets.RemoteError
	)
	switch {
	case errors.Is(err, command.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &roleErr):
		roles := make([]string, 0, len(roleErr.RequiredRoles))
		for _, role := range roleErr.RequiredRoles {
			roles = append(roles, string(role))
		}
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":         err.Error(),
			"requiredRoles": roles,
			"actualRole":    string(roleErr.ActualRole),
		})
	case errors.Is(err, access.ErrNotMember):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": err.Error()})
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, dispatch.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &remoteErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		log.Printf("[api] command failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.QueuedCommands(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": entries})
}

func (s *Server) handleQueueCount(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.QueueCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count})
}

func (s *Server) handleQueueProcess(w http.ResponseWriter, r *http.Request) {
	summary, err := s.engine.ProcessQueue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleQueueRemove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "queue id must be an integer")
		return
	}
	if err := s.engine.RemoveQueued(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ClearQueue(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	entries, err := s.engine.AuditLog(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	count, err := s.engine.QueueCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"online":     s.engine.Online(),
		"queueCount": count,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[api] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
