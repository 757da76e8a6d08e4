package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	core "github.com/switchboard-ai/switchboard/internal"
	"github.com/switchboard-ai/switchboard/internal/app"
)

// wsReadLimit caps a single inbound frame.
const wsReadLimit = 1 << 20

// wsFrame is the JSON frame shape in both directions.
type wsFrame struct {
	Type           string `json:"type"`
	APIKey         string `json:"api_key,omitempty"`
	Message        string `json:"message,omitempty"`
	Tool           string `json:"tool,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	Content        string `json:"content,omitempty"`
}

// handleWSChat upgrades to a WebSocket and runs the frame loop. Auth is
// frame-based: when a mobile API key is configured, the first frame must
// be {type:"auth", api_key} before any chat frame is honored.
func (s *server) handleWSChat(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkWSOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	if s.deps.Metrics != nil {
		s.deps.Metrics.WSConnections.Inc()
		defer s.deps.Metrics.WSConnections.Dec()
	}

	authed := s.deps.MobileAPIKey == ""
	wantHash := core.HashKey(s.deps.MobileAPIKey)

	// The socket keeps one conversation across chat frames unless a frame
	// names another.
	var conversationID string

	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.deps.Log.LogAttrs(r.Context(), slog.LevelDebug, "websocket closed",
					slog.String("error", err.Error()))
			}
			return
		}

		switch frame.Type {
		case "ping":
			if err := conn.WriteJSON(wsFrame{Type: "pong"}); err != nil {
				return
			}

		case "auth":
			got := core.HashKey(frame.APIKey)
			if s.deps.MobileAPIKey == "" ||
				subtle.ConstantTimeCompare([]byte(wantHash), []byte(got)) != 1 {
				conn.WriteJSON(wsFrame{Type: "error", Message: "Invalid API key"})
				return
			}
			authed = true
			if err := conn.WriteJSON(wsFrame{Type: "auth_ok"}); err != nil {
				return
			}

		case "chat":
			if !authed {
				// Unauthenticated chat gets an error frame; the socket
				// stays open so the client can still authenticate.
				if err := conn.WriteJSON(wsFrame{Type: "error",
					Message: "Authentication required. Send an auth frame first."}); err != nil {
					return
				}
				continue
			}
			if frame.ConversationID != "" {
				conversationID = frame.ConversationID
			}
			conversationID = s.wsChat(conn, r, frame, conversationID)

		default:
			if err := conn.WriteJSON(wsFrame{Type: "error",
				Message: "unknown frame type: " + frame.Type}); err != nil {
				return
			}
		}
	}
}

// wsChat runs one streaming chat turn over the socket, returning the
// conversation id for subsequent frames. Errors surface as error frames
// without closing the socket.
func (s *server) wsChat(conn *websocket.Conn, r *http.Request, frame wsFrame, conversationID string) string {
	res, err := s.deps.Orchestrator.StreamChat(r.Context(), app.ChatRequest{
		Message:        frame.Message,
		ConversationID: conversationID,
		ProjectID:      frame.ProjectID,
		Tool:           frame.Tool,
	})
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Message: err.Error()})
		return conversationID
	}

	if err := conn.WriteJSON(wsFrame{Type: "start", Tool: res.Tool, ConversationID: res.ConversationID}); err != nil {
		return res.ConversationID
	}
	for chunk := range res.Chunks {
		if chunk.Err != nil {
			conn.WriteJSON(wsFrame{Type: "error", Message: chunk.Err.Error()})
			return res.ConversationID
		}
		if chunk.Content == "" {
			continue
		}
		if err := conn.WriteJSON(wsFrame{Type: "chunk", Content: chunk.Content}); err != nil {
			return res.ConversationID
		}
	}
	conn.WriteJSON(wsFrame{Type: "end"})
	return res.ConversationID
}

// checkWSOrigin applies the configured origin list to WebSocket upgrades.
// Development mode accepts any origin.
func (s *server) checkWSOrigin(r *http.Request) bool {
	if s.deps.Development {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients send no Origin.
		return true
	}
	for _, o := range s.deps.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}
