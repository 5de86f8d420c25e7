package handlers

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/jmylchreest/streamgate/internal/urlutil"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResourceCatalogue struct {
	channels map[uint32]*models.StreamChannel
}

func (f *fakeResourceCatalogue) Lookup(virtualID uint32) (*models.StreamChannel, bool) {
	ch, ok := f.channels[virtualID]
	return ch, ok
}

type fakeResourceUserStore struct {
	users map[string]*models.UserCredentials
}

func (f *fakeResourceUserStore) Lookup(username, password string) (*models.UserCredentials, bool) {
	u, ok := f.users[username]
	if !ok || u.Password != password {
		return nil, false
	}
	return u, true
}

func newTestResourceHandler(t *testing.T, proxyMode models.ProxyMode, logoURL string) (*ResourceHandler, *chi.Mux) {
	t.Helper()
	catalogue := &fakeResourceCatalogue{channels: map[uint32]*models.StreamChannel{
		1: {VirtualID: 1, LogoURL: logoURL},
	}}
	users := &fakeResourceUserStore{users: map[string]*models.UserCredentials{
		"alice": {Username: "alice", Password: "secret", ProxyMode: proxyMode},
	}}
	fetcher := urlutil.NewResourceFetcher(httpclient.DefaultConfig())
	h := NewResourceHandler(catalogue, users, fetcher, slog.Default())
	r := chi.NewRouter()
	h.Mount(r)
	return h, r
}

func TestResourceHandler_UnknownCredentials(t *testing.T) {
	_, router := newTestResourceHandler(t, models.ProxyModeRedirect, "http://example.invalid/logo.png")

	req := httptest.NewRequest(http.MethodGet, "/resource/alice/wrong/1/logo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResourceHandler_UnknownChannel(t *testing.T) {
	_, router := newTestResourceHandler(t, models.ProxyModeRedirect, "http://example.invalid/logo.png")

	req := httptest.NewRequest(http.MethodGet, "/resource/alice/secret/999/logo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResourceHandler_RedirectMode(t *testing.T) {
	_, router := newTestResourceHandler(t, models.ProxyModeRedirect, "http://example.invalid/logo.png")

	req := httptest.NewRequest(http.MethodGet, "/resource/alice/secret/1/logo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://example.invalid/logo.png", rec.Header().Get("Location"))
}

func TestResourceHandler_ReverseMode(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("logo-bytes"))
	}))
	defer upstream.Close()

	_, router := newTestResourceHandler(t, models.ProxyModeReverse, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/resource/alice/secret/1/logo", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "logo-bytes", rec.Body.String())
}
