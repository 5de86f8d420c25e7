package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/streamgate/internal/models"
)

// SessionSnapshotSource exposes a point-in-time view of every live user
// session.
type SessionSnapshotSource interface {
	ActiveStreams() []models.UserSession
}

// SessionsHandler serves operator visibility into live user sessions.
type SessionsHandler struct {
	users SessionSnapshotSource
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(users SessionSnapshotSource) *SessionsHandler {
	return &SessionsHandler{users: users}
}

// ListSessionsInput is the input for the session listing endpoint.
type ListSessionsInput struct{}

// UserSessionResponse is one live session in the response.
type UserSessionResponse struct {
	Username     string  `json:"username"`
	VirtualID    uint32  `json:"virtual_id"`
	ProviderName string  `json:"provider_name"`
	Permission   string  `json:"permission"`
	AgeSeconds   float64 `json:"age_seconds"`
}

// ListSessionsOutput is the output for the session listing endpoint.
type ListSessionsOutput struct {
	Body []UserSessionResponse
}

// Register registers the sessions routes with the API.
func (h *SessionsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      "GET",
		Path:        "/api/v1/sessions",
		Summary:     "List live user sessions",
		Description: "Returns every currently live UserSession: username, virtual_id, provider, permission, and age.",
		Tags:        []string{"Sessions"},
	}, h.ListSessions)
}

// ListSessions returns the current user session snapshot.
func (h *SessionsHandler) ListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	sessions := h.users.ActiveStreams()
	now := time.Now()
	rows := make([]UserSessionResponse, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, UserSessionResponse{
			Username:     s.Username,
			VirtualID:    s.VirtualID,
			ProviderName: s.ProviderName,
			Permission:   s.Permission.String(),
			AgeSeconds:   now.Sub(s.CreatedAt).Seconds(),
		})
	}
	return &ListSessionsOutput{Body: rows}, nil
}
