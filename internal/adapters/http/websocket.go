package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/PabloGalante/aisuite/internal/api"
	"github.com/PabloGalante/aisuite/internal/app/conversation"
	"github.com/PabloGalante/aisuite/internal/observability"
)

// wsHandler serves the chat exchange over a WebSocket. Each client frame is
// an api.WSRequest; each is answered with one api.WSResponse carrying the
// same request_id. Frames on one connection are handled in order.
type wsHandler struct {
	svc            *conversation.Service
	allowedOrigins map[string]bool
	upgrader       websocket.Upgrader
}

func newWSHandler(svc *conversation.Service, allowedOrigins []string) *wsHandler {
	h := &wsHandler{
		svc:            svc,
		allowedOrigins: make(map[string]bool),
	}
	for _, o := range allowedOrigins {
		if o != "*" {
			h.allowedOrigins[o] = true
		}
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *wsHandler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // non-browser clients
	}
	return h.allowedOrigins[origin]
}

func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	log.Info("websocket connected", "remote_addr", r.RemoteAddr)

	for {
		var req api.WSRequest
		if err := conn.ReadJSON(&req); err != nil {
			if isDecodeError(err) {
				if err := conn.WriteJSON(api.WSResponse{Error: "invalid message format"}); err != nil {
					return
				}
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket closed unexpectedly", "error", err)
			}
			return
		}

		if err := conn.WriteJSON(h.handle(r, req)); err != nil {
			log.Warn("websocket write failed", "error", err)
			return
		}
	}
}

func (h *wsHandler) handle(r *http.Request, req api.WSRequest) api.WSResponse {
	resp := api.WSResponse{RequestID: req.RequestID}
	if strings.TrimSpace(req.Message) == "" {
		resp.Error = "message is required"
		return resp
	}

	ctx := r.Context()
	if req.RequestID != "" {
		ctx = observability.WithRequestID(ctx, req.RequestID)
	}

	out, err := h.svc.SendMessage(ctx, toSendMessageInput(req.Message, req.SessionID))
	if err != nil {
		status, msg := serviceErrorMessage(err)
		if status == http.StatusInternalServerError {
			observability.LoggerFromContext(ctx).Error("websocket exchange failed", "error", err)
		}
		resp.Error = msg
		return resp
	}

	resp.ChatResponse = toChatResponse(out)
	return resp
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
