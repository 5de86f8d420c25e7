package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/jmylchreest/streamgate/internal/relay"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
)

// disabledHeaders are stripped from the client's headers before they are
// forwarded upstream.
var disabledHeaders = map[string]bool{
	"Connection": true,
	"Host":       true,
}

// StreamHandler implements the raw (non-Huma) HTTP entrypoints for live,
// HLS, and fallback-clip streaming. It writes a 302 or starts a streaming
// response body before any JSON envelope could be committed, which is why
// it is wired as plain chi handlers rather than Huma operations.
type StreamHandler struct {
	gateway    *relay.Gateway
	clips      *relay.ClipLibrary
	tokenCodec *relay.TokenCodec
	playlists  *httpclient.Client
	baseURL    string
	cors       CORSConfig
	logger     *slog.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(gateway *relay.Gateway, clips *relay.ClipLibrary, tokenCodec *relay.TokenCodec, baseURL string, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		gateway:    gateway,
		clips:      clips,
		tokenCodec: tokenCodec,
		playlists:  httpclient.New(httpclient.DefaultConfig()),
		baseURL:    baseURL,
		cors:       DefaultCORSConfig(),
		logger:     logger,
	}
}

// Mount registers the streaming routes on r.
func (h *StreamHandler) Mount(r chi.Router) {
	r.Get("/live/{username}/{password}/{stream_id}", h.serveM3U)
	r.Get("/live/{username}/{password}/{stream_id}.ts", h.serveM3U)
	r.Get("/movie/{username}/{password}/{stream_id}.{ext}", h.serveM3U)
	r.Get("/series/{username}/{password}/{stream_id}.{ext}", h.serveM3U)
	r.Get("/hls/{username}/{password}/{input_id}/{stream_id}/{token}", h.serveHLS)
	r.Get("/fallback/{username}/{password}/{kind}.ts", h.serveFallbackClip)
}

func (h *StreamHandler) serveM3U(w http.ResponseWriter, r *http.Request) {
	SetRawCORSHeaders(w, h.cors)

	username := chi.URLParam(r, "username")
	password := chi.URLParam(r, "password")
	streamIDParam := stripExt(chi.URLParam(r, "stream_id"))
	virtualID, err := parseVirtualID(streamIDParam)
	if err != nil {
		http.Error(w, "bad stream id", http.StatusBadRequest)
		return
	}

	fp := fingerprintFromRequest(r)
	forceProvider := r.Header.Get("Range") != ""
	headers := forwardableHeaders(r.Header, forceProvider)

	outcome := h.gateway.HandleStreamRequest(r.Context(), username, password, virtualID, fp, headers, forceProvider)
	h.render(w, r, outcome)
}

// serveHLS decodes the token embedded in the URL, fetches the upstream
// playlist, and rewrites every URI so subsequent segment/key fetches route
// back through this same endpoint.
func (h *StreamHandler) serveHLS(w http.ResponseWriter, r *http.Request) {
	SetRawCORSHeaders(w, h.cors)

	username := chi.URLParam(r, "username")
	password := chi.URLParam(r, "password")
	inputID := chi.URLParam(r, "input_id")
	streamID := chi.URLParam(r, "stream_id")
	token := chi.URLParam(r, "token")

	sessionToken, upstreamURL, err := relay.DecodeHLSToken(token, h.tokenCodec)
	if err != nil {
		http.Error(w, "bad token", http.StatusBadRequest)
		return
	}

	playlist, responseURL, err := h.fetchPlaylist(r.Context(), upstreamURL)
	if err != nil {
		h.logger.Warn("hls playlist fetch failed", "error", err, "upstream", upstreamURL)
		h.serveFallbackPlaylist(w, username, password)
		return
	}

	params := relay.HLSRewriteParams{
		BaseURL:          h.baseURL,
		Username:         username,
		Password:         password,
		InputID:          inputID,
		VirtualID:        streamID,
		UserSessionToken: sessionToken,
	}
	rewritten, err := relay.RewritePlaylist(playlist, responseURL, params, h.tokenCodec)
	if err != nil {
		http.Error(w, "rewriting playlist", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/x-mpegurl")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, rewritten)
}

func (h *StreamHandler) fetchPlaylist(ctx context.Context, upstreamURL string) (body, responseURL string, err error) {
	resp, err := h.playlists.Get(ctx, upstreamURL)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("%w: status %d", relay.ErrUpstream, resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	return string(raw), upstreamURL, nil
}

func (h *StreamHandler) serveFallbackPlaylist(w http.ResponseWriter, username, password string) {
	loop := h.clips.Get(relay.ClipChannelUnavailable)
	if loop == nil {
		http.Error(w, "channel unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/x-mpegurl")
	w.WriteHeader(http.StatusOK)
	clipURL := fmt.Sprintf("%s/fallback/%s/%s/channel_unavailable.ts", strings.TrimRight(h.baseURL, "/"), username, password)
	_, _ = io.WriteString(w, relay.SynthesizeFallbackPlaylist(clipURL))
}

func (h *StreamHandler) serveFallbackClip(w http.ResponseWriter, r *http.Request) {
	SetRawCORSHeaders(w, h.cors)
	kind := relay.ClipKind(chi.URLParam(r, "kind"))

	loop := h.clips.Get(kind)
	if loop == nil {
		http.NotFound(w, r)
		return
	}
	h.streamLoop(w, r, loop)
}

func (h *StreamHandler) render(w http.ResponseWriter, r *http.Request, outcome relay.Outcome) {
	if outcome.Err != nil && outcome.Clip == "" {
		http.Error(w, outcome.Err.Error(), outcome.Status)
		return
	}
	if outcome.Redirect != "" {
		http.Redirect(w, r, outcome.Redirect, http.StatusFound)
		return
	}
	if outcome.Clip != "" {
		loop := h.clips.Get(outcome.Clip)
		if loop == nil {
			http.Error(w, "no fallback clip configured", http.StatusServiceUnavailable)
			return
		}
		h.streamLoop(w, r, loop)
		return
	}
	if outcome.Stream != nil {
		w.Header().Set("Content-Type", "video/mp2t")
		w.WriteHeader(http.StatusOK)
		_ = outcome.Stream.Serve(r.Context(), w)
		return
	}
	http.Error(w, "no outcome produced", http.StatusInternalServerError)
}

func (h *StreamHandler) streamLoop(w http.ResponseWriter, r *http.Request, loop *relay.TSLoopBuffer) {
	w.Header().Set("Content-Type", "video/mp2t")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for {
		if r.Context().Err() != nil {
			return
		}
		if _, err := w.Write(loop.NextChunk()); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func forwardableHeaders(in http.Header, keepRange bool) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		if disabledHeaders[k] {
			continue
		}
		if k == "Range" && !keepRange {
			continue
		}
		out[k] = v
	}
	return out
}

func fingerprintFromRequest(r *http.Request) models.Fingerprint {
	var addr net.Addr
	if tcpAddr, err := net.ResolveTCPAddr("tcp", r.RemoteAddr); err == nil {
		addr = tcpAddr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return models.NewFingerprint(addr, host, r.UserAgent(), r.Header.Get("Accept"))
}

func parseVirtualID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(v), nil
}

func stripExt(name string) string {
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		return name[:idx]
	}
	return name
}
