package relay

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogue struct {
	channels map[uint32]*models.StreamChannel
}

func (f *fakeCatalogue) Lookup(virtualID uint32) (*models.StreamChannel, bool) {
	c, ok := f.channels[virtualID]
	return c, ok
}

type fakeUsers struct {
	users map[string]*models.UserCredentials
}

func (f *fakeUsers) Lookup(username, password string) (*models.UserCredentials, bool) {
	u, ok := f.users[username]
	if !ok || u.Password != password {
		return nil, false
	}
	return u, true
}

type fakeUpstream struct {
	body string
	fail bool
}

func (f *fakeUpstream) Open(ctx context.Context, channel *models.StreamChannel, headers http.Header) (*http.Response, error) {
	if f.fail {
		return nil, assert.AnError
	}
	return &http.Response{Body: io.NopCloser(bytes.NewReader([]byte(f.body)))}, nil
}

func newTestGateway(t *testing.T, fail bool) *Gateway {
	t.Helper()
	return &Gateway{
		Catalogue: &fakeCatalogue{channels: map[uint32]*models.StreamChannel{
			1001: {VirtualID: 1001, ProviderID: "provA", Cluster: models.ClusterLive, URL: "https://up.example/1001.ts", Shared: false},
		}},
		Users: &fakeUsers{users: map[string]*models.UserCredentials{
			"alice": {Username: "alice", Password: "secret", MaxConnections: 2, Status: "Active"},
		}},
		Pool:         NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 2, Priority: 10}}, time.Minute, nil, slog.Default()),
		Sessions:     NewUserManager(time.Minute, slog.Default()),
		Shared:       NewSharedStreamManager(slog.Default()),
		Clips:        &ClipLibrary{buffers: map[ClipKind]*TSLoopBuffer{}},
		Upstream:     &fakeUpstream{body: "stream-bytes", fail: fail},
		GraceTimeout: time.Minute,
		GracePeriod:  time.Minute,
		Logger:       slog.Default(),
	}
}

func TestGateway_HandleStreamRequest_HappyPath(t *testing.T) {
	g := newTestGateway(t, false)
	fp := models.Fingerprint{Key: "fp1"}

	out := g.HandleStreamRequest(context.Background(), "alice", "secret", 1001, fp, http.Header{}, false)
	require.NoError(t, out.Err)
	require.NotNil(t, out.Stream)

	var buf bytes.Buffer
	require.NoError(t, out.Stream.Serve(context.Background(), &buf))
	assert.Equal(t, "stream-bytes", buf.String())
}

func TestGateway_HandleStreamRequest_UnknownUser(t *testing.T) {
	g := newTestGateway(t, false)
	fp := models.Fingerprint{Key: "fp1"}

	out := g.HandleStreamRequest(context.Background(), "bob", "wrong", 1001, fp, http.Header{}, false)
	assert.Error(t, out.Err)
	assert.Equal(t, http.StatusForbidden, out.Status)
}

func TestGateway_HandleStreamRequest_UnknownChannel(t *testing.T) {
	g := newTestGateway(t, false)
	fp := models.Fingerprint{Key: "fp1"}

	out := g.HandleStreamRequest(context.Background(), "alice", "secret", 9999, fp, http.Header{}, false)
	assert.ErrorIs(t, out.Err, ErrUnknownChannel)
	assert.Equal(t, http.StatusNotFound, out.Status)
}

func TestGateway_HandleStreamRequest_UpstreamFailureServesClip(t *testing.T) {
	g := newTestGateway(t, true)
	fp := models.Fingerprint{Key: "fp1"}

	out := g.HandleStreamRequest(context.Background(), "alice", "secret", 1001, fp, http.Header{}, false)
	assert.Equal(t, ClipChannelUnavailable, out.Clip)
	assert.Nil(t, out.Stream)
}

func TestGateway_HandleStreamRequest_ProviderExhausted(t *testing.T) {
	g := newTestGateway(t, false)
	g.Pool = NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 0, Priority: 10}}, time.Minute, nil, slog.Default())
	// Exhaust the unlimited slot's availability by using an expired slot instead.
	past := timeNowMinusHour()
	g.Pool = NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 1, Priority: 10, ExpDate: &past}}, time.Minute, nil, slog.Default())

	fp := models.Fingerprint{Key: "fp1"}
	out := g.HandleStreamRequest(context.Background(), "alice", "secret", 1001, fp, http.Header{}, false)
	assert.Equal(t, ClipProviderConnectionsExhausted, out.Clip)
}

func timeNowMinusHour() (t time.Time) {
	return time.Now().Add(-time.Hour)
}
