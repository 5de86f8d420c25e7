package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/jmylchreest/streamgate/internal/urlutil"
)

// ResourceCatalogue resolves a virtual_id to the channel whose logo/metadata
// URL the resource proxy serves.
type ResourceCatalogue interface {
	Lookup(virtualID uint32) (*models.StreamChannel, bool)
}

// ResourceUserStore resolves credentials for the resource proxy's auth check.
type ResourceUserStore interface {
	Lookup(username, password string) (*models.UserCredentials, bool)
}

// ResourceHandler serves the M3U resource proxy: it redirects or
// reverse-proxies a channel's logo/metadata URL depending on the
// authenticated user's proxy mode.
type ResourceHandler struct {
	catalogue ResourceCatalogue
	users     ResourceUserStore
	fetcher   *urlutil.ResourceFetcher
	logger    *slog.Logger
}

// NewResourceHandler creates a new resource proxy handler.
func NewResourceHandler(catalogue ResourceCatalogue, users ResourceUserStore, fetcher *urlutil.ResourceFetcher, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{catalogue: catalogue, users: users, fetcher: fetcher, logger: logger}
}

// Mount registers the resource proxy route on r.
func (h *ResourceHandler) Mount(r chi.Router) {
	r.Get("/resource/{username}/{password}/{stream_id}/{resource}", h.serveResource)
}

func (h *ResourceHandler) serveResource(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	password := chi.URLParam(r, "password")

	user, ok := h.users.Lookup(username, password)
	if !ok {
		http.Error(w, "unknown credentials", http.StatusForbidden)
		return
	}

	virtualID, err := parseVirtualID(stripExt(chi.URLParam(r, "stream_id")))
	if err != nil {
		http.Error(w, "bad stream id", http.StatusBadRequest)
		return
	}
	channel, ok := h.catalogue.Lookup(virtualID)
	if !ok || channel.LogoURL == "" {
		http.NotFound(w, r)
		return
	}

	if user.ProxyMode == models.ProxyModeRedirect {
		http.Redirect(w, r, channel.LogoURL, http.StatusFound)
		return
	}
	h.reverseProxy(r.Context(), w, channel.LogoURL)
}

func (h *ResourceHandler) reverseProxy(ctx context.Context, w http.ResponseWriter, resourceURL string) {
	body, err := h.fetcher.Fetch(ctx, resourceURL)
	if err != nil {
		h.logger.Warn("resource fetch failed", "error", err, "url", resourceURL)
		http.Error(w, "fetching resource", http.StatusBadGateway)
		return
	}
	defer body.Close()
	_, _ = io.Copy(w, body)
}
