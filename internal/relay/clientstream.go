package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/streamgate/internal/models"
)

// fallbackState is swapped in atomically when a client stream must switch
// from live provider bytes to a looping diagnostic clip.
type fallbackState int32

const (
	fallbackNone fallbackState = iota
	fallbackChannelUnavailable
	fallbackUserExhausted
	fallbackProviderExhausted
	fallbackSleepTimerExpired // no clip: the stream ends
)

func (s fallbackState) clipKind() ClipKind {
	switch s {
	case fallbackUserExhausted:
		return ClipUserConnectionsExhausted
	case fallbackProviderExhausted:
		return ClipProviderConnectionsExhausted
	default:
		return ClipChannelUnavailable
	}
}

// ClientStream is the stream actually sent to one HTTP client. It proxies
// provider bytes verbatim until either the upstream fails or the client's
// grace-period deferred check finds it over capacity — at which point it
// switches to a looping fallback clip instead of closing the connection
// outright. When the optional sleep timer expires the stream ends.
type ClientStream struct {
	session  *models.UserSession
	provider io.ReadCloser
	alloc    models.ProviderAllocation
	pool     *ProviderPool
	sessions *UserManager
	clips    *ClipLibrary
	logger   *slog.Logger

	fallback    atomic.Int32
	releaseOnce sync.Once
}

// NewClientStream constructs a client stream bound to one provider
// allocation. If permission is already Exhausted, the stream starts in
// fallback mode and never touches provider. sessions is the UserManager the
// stream's session was created in; Close removes it so no session outlives
// its client's connection.
func NewClientStream(session *models.UserSession, provider io.ReadCloser, alloc models.ProviderAllocation, pool *ProviderPool, sessions *UserManager, clips *ClipLibrary, logger *slog.Logger) *ClientStream {
	cs := &ClientStream{
		session:  session,
		provider: provider,
		alloc:    alloc,
		pool:     pool,
		sessions: sessions,
		clips:    clips,
		logger:   logger,
	}
	if session.Permission == models.PermissionExhausted {
		cs.fallback.Store(int32(fallbackUserExhausted))
	}
	return cs
}

// ScheduleGraceCheck arranges the deferred re-evaluation required for a
// session granted a one-time grace-period overflow: after delay, if the
// user is still over capacity the stream switches to the user-exhausted
// clip; else if its provider slot is over limit, to the provider-exhausted
// clip.
func (cs *ClientStream) ScheduleGraceCheck(ctx context.Context, delay time.Duration, users *UserManager, maxConnections int) {
	if cs.session.Permission != models.PermissionGracePeriod {
		return
	}
	timer := time.NewTimer(delay)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if maxConnections > 0 && users.UserConnections(cs.session.Username) > maxConnections {
			cs.fallback.Store(int32(fallbackUserExhausted))
			return
		}
		if cs.pool.IsOverLimit(cs.session.ProviderName) {
			cs.fallback.Store(int32(fallbackProviderExhausted))
		}
	}()
}

// ScheduleSleepTimer ends the stream after minutes elapse, regardless of
// permission state: Serve releases the provider connection and returns. A
// non-positive minutes disables the timer.
func (cs *ClientStream) ScheduleSleepTimer(ctx context.Context, minutes int) {
	if minutes <= 0 {
		return
	}
	timer := time.NewTimer(time.Duration(minutes) * time.Minute)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			cs.fallback.Store(int32(fallbackSleepTimerExpired))
		}
	}()
}

// Serve copies bytes to w until ctx is cancelled, the provider stream ends,
// the sleep timer expires, or a fallback transition occurs, in which case it
// emits chunks from the configured clip loop instead. Returns nil on a clean
// client disconnect.
func (cs *ClientStream) Serve(ctx context.Context, w io.Writer) error {
	defer cs.Close()

	buf := make([]byte, 32*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if state := fallbackState(cs.fallback.Load()); state != fallbackNone {
			if state == fallbackSleepTimerExpired {
				return nil
			}
			return cs.serveFallback(ctx, w, state)
		}

		n, err := cs.provider.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			cs.logger.Warn("client stream upstream read error", "error", err, "provider", cs.session.ProviderName)
			return cs.serveFallback(ctx, w, fallbackChannelUnavailable)
		}
	}
}

func (cs *ClientStream) serveFallback(ctx context.Context, w io.Writer, state fallbackState) error {
	cs.releaseProvider()
	if cs.clips == nil {
		return nil
	}
	loop := cs.clips.Get(state.clipKind())
	if loop == nil {
		return nil
	}
	for {
		if ctx.Err() != nil || fallbackState(cs.fallback.Load()) == fallbackSleepTimerExpired {
			return nil
		}
		if _, err := w.Write(loop.NextChunk()); err != nil {
			return nil
		}
	}
}

func (cs *ClientStream) releaseProvider() {
	cs.releaseOnce.Do(func() {
		if cs.provider != nil {
			cs.provider.Close()
		}
		cs.pool.Release(cs.alloc)
		if cs.sessions != nil {
			cs.sessions.RemoveSession(cs.session.Username, cs.session.FingerprintKey, cs.session.VirtualID)
		}
	})
}

// Close releases the provider handle if still held. Safe to call multiple
// times and from the stream's own Serve defer as well as an external
// disconnect hook.
func (cs *ClientStream) Close() {
	cs.releaseProvider()
}
