package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nugget/concierge/internal/agent"
	"github.com/nugget/concierge/internal/replier"
)

// MessageRequest is the body of POST /v1/messages.
type MessageRequest struct {
	BusinessID string `json:"business_id,omitempty"`
	UserID     string `json:"user_id"`
	Name       string `json:"name,omitempty"`
	Text       string `json:"text"`
}

// MessageResponse is the turn result returned to the caller.
type MessageResponse struct {
	RequestID string         `json:"request_id"`
	Text      string         `json:"text"`
	HTML      string         `json:"html,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Delivered bool           `json:"delivered"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		s.errorResponse(w, http.StatusBadRequest, "text is required")
		return
	}
	businessID := req.BusinessID
	if businessID == "" {
		businessID = s.opts.BusinessID
	}

	reply, err := s.deps.Turns.HandleMessage(r.Context(), agent.Inbound{
		BusinessID: businessID,
		UserID:     req.UserID,
		Name:       req.Name,
		Text:       req.Text,
		Privileged: s.auth.privileged(r),
	})
	if err != nil {
		// The reply is still valid; delivery or persistence failed.
		s.logger.Warn("turn completed with errors", "error", err)
	}

	html, herr := replier.RenderHTML(reply.Answer.Text)
	if herr != nil {
		s.logger.Debug("render reply html failed", "error", herr)
	}
	writeJSON(w, MessageResponse{
		RequestID: reply.RequestID,
		Text:      reply.Answer.Text,
		HTML:      html,
		Metadata:  reply.Answer.Metadata.Map(),
		Delivered: err == nil,
	}, s.logger)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		s.errorResponse(w, http.StatusNotFound, "websocket replies are disabled")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.errorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}
	s.deps.Hub.Serve(w, r, s.businessID(r), userID)
}
