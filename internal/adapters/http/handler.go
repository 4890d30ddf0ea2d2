package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/PabloGalante/aisuite/internal/api"
	"github.com/PabloGalante/aisuite/internal/app/conversation"
	"github.com/PabloGalante/aisuite/internal/domain"
	"github.com/PabloGalante/aisuite/internal/observability"
)

// APIPrefix is where the chat routes are mounted.
const APIPrefix = "/api"

type Options struct {
	// AllowedOrigins is used for CORS and the WebSocket origin check.
	// Empty means any origin.
	AllowedOrigins []string
}

type Server struct {
	svc *conversation.Service
	ws  *wsHandler
}

func NewServer(svc *conversation.Service, opts Options) http.Handler {
	s := &Server{
		svc: svc,
		ws:  newWSHandler(svc, opts.AllowedOrigins),
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST "+APIPrefix+api.PathMessage, s.handleSendMessage)
	mux.HandleFunc("GET "+APIPrefix+api.PathSessions, s.handleListSessions)
	mux.HandleFunc("GET "+APIPrefix+api.PathHistory+"{id}", s.handleGetHistory)
	mux.HandleFunc("DELETE "+APIPrefix+api.PathSession+"{id}", s.handleDeleteSession)
	mux.HandleFunc("GET "+APIPrefix+api.PathModelInfo, s.handleModelInfo)
	mux.Handle("GET "+APIPrefix+api.PathWebSocket, s.ws)

	return chainMiddlewares(mux,
		withCORS(opts.AllowedOrigins),
		withLogging,
		withRequestID,
	)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		badRequest(w, "message is required")
		return
	}

	out, err := s.svc.SendMessage(r.Context(), toSendMessageInput(req.Message, req.SessionID))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatResponse(out))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.svc.ListSessions(r.Context(), conversation.DefaultSessionListLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := api.SessionsResponse{
		Success:  true,
		Count:    len(summaries),
		Sessions: make([]api.SessionSummary, 0, len(summaries)),
	}
	for _, sum := range summaries {
		item := api.SessionSummary{
			SessionID:    string(sum.Session.ID),
			MessageCount: sum.MessageCount,
			CreatedAt:    sum.Session.CreatedAt,
			UpdatedAt:    sum.Session.UpdatedAt,
		}
		if sum.LastMessage != "" {
			last := sum.LastMessage
			item.LastMessage = &last
		}
		resp.Sessions = append(resp.Sessions, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(r.PathValue("id"))

	session, msgs, err := s.svc.GetHistory(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := api.HistoryResponse{
		Success:      true,
		SessionID:    string(session.ID),
		MessageCount: len(msgs),
		Messages:     make([]api.HistoryMessage, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toHistoryMessage(m))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := domain.SessionID(r.PathValue("id"))

	if err := s.svc.DeleteSession(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, api.DeleteResponse{
		Success: true,
		Message: "Session " + string(id) + " deleted",
	})
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	info := s.svc.ModelInfo()
	writeJSON(w, http.StatusOK, api.ModelInfoResponse{
		Success: true,
		ModelInfo: api.ModelInfo{
			ModelName:         info.ModelName,
			Backend:           info.Backend,
			IsLoaded:          info.IsLoaded,
			MaxResponseLength: info.MaxResponseLength,
			MaxContextLength:  info.MaxContextLength,
		},
	})
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toSendMessageInput(message string, sessionID *string) conversation.SendMessageInput {
	in := conversation.SendMessageInput{Text: message}
	if sessionID != nil {
		in.SessionID = domain.SessionID(*sessionID)
	}
	return in
}

func toChatResponse(out *conversation.SendMessageOutput) *api.ChatResponse {
	return &api.ChatResponse{
		Response:   out.Reply,
		SessionID:  string(out.SessionID),
		Intent:     string(out.Intent),
		Confidence: out.Confidence,
		Metadata: api.ChatMetadata{
			HasContext:    out.HasContext,
			ModelUsed:     out.ModelUsed,
			ContextLength: out.ContextLength,
			MessageCount:  out.MessageCount,
		},
	}
}

func toHistoryMessage(m *domain.Message) api.HistoryMessage {
	hm := api.HistoryMessage{
		ID:        string(m.ID),
		Role:      string(m.Role),
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
	if m.Role == domain.RoleAssistant {
		confidence := m.Confidence
		intent := string(m.Intent)
		hm.Confidence = &confidence
		hm.Intent = &intent
	}
	return hm
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: msg})
}

// serviceErrorMessage maps a service error to a status and a client-safe message.
func serviceErrorMessage(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session not found"
	case errors.Is(err, conversation.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := serviceErrorMessage(err)
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed",
			"path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, api.ErrorResponse{Error: msg})
}
