package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jmylchreest/streamgate/internal/models"
)

// ChannelCatalogue resolves a virtual_id to the channel it addresses.
// Playlist ingestion and catalogue storage are external collaborators this
// repo consumes through this interface rather than implements.
type ChannelCatalogue interface {
	Lookup(virtualID uint32) (*models.StreamChannel, bool)
}

// UserStore resolves credentials to an account. Static credentials loaded
// from config or an external user database both satisfy this interface.
type UserStore interface {
	Lookup(username, password string) (*models.UserCredentials, bool)
}

// Upstream opens a provider connection for a channel. The Gateway feeds the
// outcome of each Open back to the pool's health circuit.
type Upstream interface {
	Open(ctx context.Context, channel *models.StreamChannel, headers http.Header) (*http.Response, error)
}

// Gateway wires the streaming core's components together and implements
// the stream request state machine described by the component design.
type Gateway struct {
	Catalogue ChannelCatalogue
	Users     UserStore
	Pool      *ProviderPool
	Sessions  *UserManager
	Shared    *SharedStreamManager
	Clips     *ClipLibrary
	Upstream  Upstream

	GraceTimeout   time.Duration
	GracePeriod    time.Duration
	SleepTimerMins int

	Logger *slog.Logger
}

// Outcome tells the HTTP layer how to render the result of a stream
// request: proxy a live ClientStream, redirect, or render an error/clip.
type Outcome struct {
	Stream   *ClientStream
	Redirect string
	Clip     ClipKind
	Status   int
	Err      error
}

// HandleStreamRequest runs the FSM described in the component design:
// AuthOk -> ResolveChannel -> CheckUserPermission -> LookupOrCreateSession ->
// SelectProvider/JoinShared -> ServeClientStream.
func (g *Gateway) HandleStreamRequest(ctx context.Context, username, password string, virtualID uint32, fp models.Fingerprint, headers http.Header, forceProviderStream bool) Outcome {
	user, ok := g.Users.Lookup(username, password)
	if !ok {
		return Outcome{Status: http.StatusForbidden, Err: fmt.Errorf("%w: unknown credentials", ErrSessionMismatch)}
	}
	if user.IsExpired() {
		return Outcome{Clip: ClipUserAccountExpired, Status: http.StatusOK}
	}
	if !user.IsActive() {
		return Outcome{Status: http.StatusForbidden, Err: fmt.Errorf("account disabled")}
	}

	channel, ok := g.Catalogue.Lookup(virtualID)
	if !ok {
		return Outcome{Status: http.StatusNotFound, Err: fmt.Errorf("%w: virtual_id=%d", ErrUnknownChannel, virtualID)}
	}

	if user.ProxyMode == models.ProxyModeRedirect {
		return Outcome{Redirect: channel.URL, Status: http.StatusFound}
	}

	existing := g.Sessions.GetAndUpdateUserSession(username, fp.Key, virtualID)
	if existing != nil {
		return g.reconnect(ctx, user, existing, channel, headers)
	}

	if g.Sessions.IsUserBlockedForStream(username, virtualID) {
		return Outcome{Clip: ClipUserConnectionsExhausted, Status: http.StatusOK}
	}

	alloc := g.Pool.GetNextProvider(channel.ProviderID)
	if alloc.Exhausted() {
		return Outcome{Clip: ClipProviderConnectionsExhausted, Status: http.StatusOK}
	}

	session := g.Sessions.CreateUserSession(user, fp.Key, virtualID, alloc.Slot.ProviderName, channel.URL)
	if session.Permission == models.PermissionExhausted {
		g.Pool.Release(alloc)
		return Outcome{Clip: ClipUserConnectionsExhausted, Status: http.StatusOK}
	}

	if channel.Shared && channel.IsLive() && !forceProviderStream {
		return g.joinShared(ctx, session, channel, alloc, headers, user)
	}
	return g.openDirect(ctx, session, channel, alloc, headers, user)
}

func (g *Gateway) joinShared(ctx context.Context, session *models.UserSession, channel *models.StreamChannel, alloc models.ProviderAllocation, headers http.Header, user *models.UserCredentials) Outcome {
	if state, ok := g.Shared.Lookup(channel.URL); ok {
		g.Pool.Release(alloc) // joining an existing fanout does not need its own slot
		ch := g.Shared.Subscribe(ctx, state, session.Key())
		return g.streamFromChannel(ctx, session, ch, user)
	}

	resp, err := g.Upstream.Open(ctx, channel, headers)
	if err != nil {
		g.Pool.RecordUpstreamFailure(alloc.Slot.ProviderName)
		g.Pool.Release(alloc)
		return Outcome{Clip: ClipChannelUnavailable, Status: http.StatusOK}
	}
	g.Pool.RecordUpstreamSuccess(alloc.Slot.ProviderName)

	_, ch := g.Shared.RegisterSharedStream(ctx, channel.URL, resp.Body, 16, func() { g.Pool.Release(alloc) }, session.Key())
	return g.streamFromChannel(ctx, session, ch, user)
}

func (g *Gateway) reconnect(ctx context.Context, user *models.UserCredentials, session *models.UserSession, channel *models.StreamChannel, headers http.Header) Outcome {
	alloc := g.Pool.ForceExactAcquireConnection(session.ProviderName)
	if alloc.Exhausted() {
		return Outcome{Clip: ClipProviderConnectionsExhausted, Status: http.StatusOK}
	}
	return g.openDirect(ctx, session, channel, alloc, headers, user)
}

func (g *Gateway) openDirect(ctx context.Context, session *models.UserSession, channel *models.StreamChannel, alloc models.ProviderAllocation, headers http.Header, user *models.UserCredentials) Outcome {
	resp, err := g.Upstream.Open(ctx, channel, headers)
	if err != nil {
		g.Pool.RecordUpstreamFailure(alloc.Slot.ProviderName)
		g.Pool.Release(alloc)
		return Outcome{Clip: ClipChannelUnavailable, Status: http.StatusOK}
	}
	g.Pool.RecordUpstreamSuccess(alloc.Slot.ProviderName)

	cs := NewClientStream(session, resp.Body, alloc, g.Pool, g.Sessions, g.Clips, g.Logger)
	g.wireTimers(ctx, cs, session, user)
	return Outcome{Stream: cs, Status: http.StatusOK}
}

// streamFromChannel adapts a shared-stream fanout channel into the
// io.ReadCloser ClientStream expects.
func (g *Gateway) streamFromChannel(ctx context.Context, session *models.UserSession, ch <-chan []byte, user *models.UserCredentials) Outcome {
	alloc := models.ExhaustedAllocation // the shared stream, not this client, owns the provider guard
	cs := NewClientStream(session, newChanReader(ch), alloc, g.Pool, g.Sessions, g.Clips, g.Logger)
	g.wireTimers(ctx, cs, session, user)
	return Outcome{Stream: cs, Status: http.StatusOK}
}

func (g *Gateway) wireTimers(ctx context.Context, cs *ClientStream, session *models.UserSession, user *models.UserCredentials) {
	cs.ScheduleGraceCheck(ctx, g.GracePeriod, g.Sessions, user.MaxConnections)
	cs.ScheduleSleepTimer(ctx, g.SleepTimerMins)
}
