package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/app"
	"github.com/switchboard-ai/switchboard/internal/auth"
)

const maxMessageChars = 100_000

var (
	conversationIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	projectIDPattern      = regexp.MustCompile(`^[A-Za-z0-9_/-]+$`)
)

// chatBody is the POST /api/v1/chat request schema.
type chatBody struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	Tool           string `json:"tool,omitempty"`
	Stream         bool   `json:"stream,omitempty"`
}

// chatResponse is the unary chat response schema.
type chatResponse struct {
	Content        string                `json:"content"`
	Tool           string                `json:"tool"`
	ConversationID string                `json:"conversation_id"`
	Metadata       core.ResponseMetadata `json:"metadata"`
}

func (b *chatBody) validate() error {
	if b.Message == "" {
		return fmt.Errorf("message is required: %w", core.ErrValidation)
	}
	if len(b.Message) > maxMessageChars {
		return fmt.Errorf("message exceeds %d characters: %w", maxMessageChars, core.ErrValidation)
	}
	if b.ConversationID != "" && !conversationIDPattern.MatchString(b.ConversationID) {
		return fmt.Errorf("invalid conversation_id: %w", core.ErrValidation)
	}
	if b.ProjectID != "" && !projectIDPattern.MatchString(b.ProjectID) {
		return fmt.Errorf("invalid project_id: %w", core.ErrValidation)
	}
	return nil
}

// handleChat serves POST /api/v1/chat, unary or streaming depending on the
// stream flag.
func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body chatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		if r.Body != nil && isMaxBytesError(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse("request body too large"))
			return
		}
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse("invalid JSON body"))
		return
	}
	if err := body.validate(); err != nil {
		writeError(w, err)
		return
	}

	req := app.ChatRequest{
		Message:        body.Message,
		ConversationID: body.ConversationID,
		ProjectID:      body.ProjectID,
		Tool:           body.Tool,
	}

	if body.Stream {
		s.streamChat(w, r, req)
		return
	}

	res, err := s.deps.Orchestrator.Chat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Content:        res.Response.Content,
		Tool:           res.Response.Tool,
		ConversationID: res.ConversationID,
		Metadata:       res.Response.Metadata,
	})
}

// streamChat relays orchestrator chunks as SSE data frames. The first
// frame announces the tool and conversation id; text frames follow; the
// stream ends with the [DONE] sentinel.
func (s *server) streamChat(w http.ResponseWriter, r *http.Request, req app.ChatRequest) {
	res, err := s.deps.Orchestrator.StreamChat(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse("streaming unsupported"))
		return
	}

	writeSSEHeaders(w)
	start, _ := json.Marshal(map[string]string{
		"tool":            res.Tool,
		"conversation_id": res.ConversationID,
	})
	writeSSEData(w, start)
	flusher.Flush()

	for chunk := range res.Chunks {
		if chunk.Err != nil {
			frame, _ := json.Marshal(map[string]string{"error": chunk.Err.Error()})
			writeSSEData(w, frame)
			flusher.Flush()
			return
		}
		if chunk.Content != "" {
			frame, _ := json.Marshal(map[string]string{"content": chunk.Content})
			writeSSEData(w, frame)
			flusher.Flush()
		}
	}
	writeSSEDone(w)
	flusher.Flush()
}

// isMaxBytesError reports whether a decode failure came from the body cap.
func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

// handleGetConversation serves GET /api/v1/conversations/{id}.
func (s *server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	convo, err := s.deps.Orchestrator.Conversation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	caller := core.IdentityFromContext(r.Context())
	if err := auth.CheckResourceAccess(caller, convo.UserID, core.PermChatRead); err != nil {
		if s.deps.Audit != nil && caller != nil {
			s.deps.Audit.PermissionDenied(r.Context(), caller.UserID, "conversation", id)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convo)
}

// handleTools serves GET /api/v1/tools.
func (s *server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": s.deps.Orchestrator.Tools(r.Context()),
	})
}
