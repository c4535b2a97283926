package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/lg12346/FilaVirtual/internal/dispatch"
	"github.com/lg12346/FilaVirtual/internal/store"

	"github.com/google/uuid"
)

const (
	historyLimit  = 20
	publicLimit   = 100
	auditLogLimit = 100
)

type Handler struct {
	engine   *dispatch.Engine
	tickets  store.TicketStore
	accounts store.AccountStore
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(engine *dispatch.Engine, tickets store.TicketStore, accounts store.AccountStore) *Handler {
	return &Handler{engine: engine, tickets: tickets, accounts: accounts}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/register", h.handleRegister)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/profile", h.handleProfile)
	mux.HandleFunc("/api/tickets/generate", h.handleGenerate)
	mux.HandleFunc("/api/tickets/current", h.handleCurrent)
	mux.HandleFunc("/api/tickets/history", h.handleHistory)
	mux.HandleFunc("/api/tickets/public", h.handlePublic)
	mux.HandleFunc("/api/admin/tickets", h.handleAdminTickets)
	mux.HandleFunc("/api/admin/call-next", h.handleCallNext)
	mux.HandleFunc("/api/admin/call-specific", h.handleCallSpecific)
	mux.HandleFunc("/api/admin/complete-ticket", h.handleComplete)
	mux.HandleFunc("/api/admin/no-show", h.handleNoShow)
	mux.HandleFunc("/api/admin/stats", h.handleStats)
	mux.HandleFunc("/api/admin/audit", h.handleAudit)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	ticket, err := h.engine.Generate(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	ticket, err := h.tickets.CurrentTicket(r.Context(), user.UserID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	tickets, err := h.tickets.ListUserTickets(r.Context(), user.UserID, historyLimit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handlePublic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot, err := h.tickets.PublicSnapshot(r.Context(), publicLimit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *Handler) handleAdminTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	tickets, err := h.tickets.ListAdminTickets(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

type callNextRequest struct {
	CounterNumber json.Number `json:"counter_number"`
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req callNextRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ticket, err := h.engine.CallNext(r.Context(), admin.UserID, req.CounterNumber.String())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type callSpecificRequest struct {
	TicketID      string      `json:"ticket_id"`
	CounterNumber json.Number `json:"counter_number"`
}

func (h *Handler) handleCallSpecific(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req callSpecificRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if !requireTicketID(w, req.TicketID) {
		return
	}

	ticket, err := h.engine.CallSpecific(r.Context(), admin.UserID, req.TicketID, req.CounterNumber.String())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type ticketActionRequest struct {
	TicketID string `json:"ticket_id"`
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req ticketActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if !requireTicketID(w, req.TicketID) {
		return
	}

	ticket, err := h.engine.Complete(r.Context(), admin.UserID, req.TicketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleNoShow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	admin, ok := requireAdmin(w, r)
	if !ok {
		return
	}

	var req ticketActionRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	req.TicketID = strings.TrimSpace(req.TicketID)
	if !requireTicketID(w, req.TicketID) {
		return
	}

	ticket, err := h.engine.MarkNoShow(r.Context(), admin.UserID, req.TicketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	stats, err := h.tickets.StatsToday(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireAdmin(w, r); !ok {
		return
	}

	entries, err := h.tickets.ListAuditEntries(r.Context(), auditLogLimit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func requireTicketID(w http.ResponseWriter, ticketID string) bool {
	if ticketID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id is required")
		return false
	}
	if !isValidUUID(ticketID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_id must be a UUID")
		return false
	}
	return true
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrNoOpenTicket):
		return http.StatusNotFound, "no_open_ticket", "no open ticket available"
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrUserExists):
		return http.StatusConflict, "user_exists", "user already exists"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
