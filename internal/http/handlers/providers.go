package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/streamgate/internal/models"
)

// ProviderSnapshotSource exposes a point-in-time view of every configured
// input's admission slots, grouped by input name.
type ProviderSnapshotSource interface {
	Snapshot() map[string][]models.ProviderSlot
}

// ProvidersHandler serves operator visibility into provider admission state.
type ProvidersHandler struct {
	pool ProviderSnapshotSource
}

// NewProvidersHandler creates a new providers handler.
func NewProvidersHandler(pool ProviderSnapshotSource) *ProvidersHandler {
	return &ProvidersHandler{pool: pool}
}

// ListProvidersInput is the input for the provider listing endpoint.
type ListProvidersInput struct{}

// ProviderSlotResponse is one slot's admission state in the response.
type ProviderSlotResponse struct {
	ProviderName       string `json:"provider_name"`
	MaxConnections     int    `json:"max_connections"`
	Priority           int16  `json:"priority"`
	CurrentConnections int    `json:"current_connections"`
	GrantedGrace       bool   `json:"granted_grace"`
}

// ListProvidersOutput is the output for the provider listing endpoint.
type ListProvidersOutput struct {
	Body map[string][]ProviderSlotResponse
}

// Register registers the providers routes with the API.
func (h *ProvidersHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listProviders",
		Method:      "GET",
		Path:        "/api/v1/providers",
		Summary:     "List provider admission state",
		Description: "Returns the current ProviderSlot snapshot per input: name, priority, current/max connections, and grace state.",
		Tags:        []string{"Providers"},
	}, h.ListProviders)
}

// ListProviders returns the current provider slot snapshot.
func (h *ProvidersHandler) ListProviders(ctx context.Context, input *ListProvidersInput) (*ListProvidersOutput, error) {
	snapshot := h.pool.Snapshot()
	body := make(map[string][]ProviderSlotResponse, len(snapshot))
	for name, slots := range snapshot {
		rows := make([]ProviderSlotResponse, 0, len(slots))
		for _, s := range slots {
			rows = append(rows, ProviderSlotResponse{
				ProviderName:       s.ProviderName,
				MaxConnections:     s.MaxConnections,
				Priority:           s.Priority,
				CurrentConnections: s.CurrentConnections,
				GrantedGrace:       s.GrantedGrace,
			})
		}
		body[name] = rows
	}
	return &ListProvidersOutput{Body: body}, nil
}
