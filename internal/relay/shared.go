package relay

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

const (
	defaultFanoutCapacity  = 32
	defaultPerClientBuffer = 64
	bytesPerFanoutSlot     = 12 * 1024
)

// subscriber is one client attached to a SharedStreamState.
type subscriber struct {
	id     string
	ch     chan []byte
	cancel context.CancelFunc
}

// SharedStreamState is the fanout state for one currently-shared upstream
// URL. It is created on the first viewer and torn down when the last
// viewer leaves or the upstream ends.
type SharedStreamState struct {
	url           string
	burst         *RollingByteBuffer
	fanout        chan []byte
	providerGuard func()
	cancel        context.CancelFunc

	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

// SharedStreamManager multiplexes one upstream body to many clients so a
// popular live channel opens exactly one upstream connection.
type SharedStreamManager struct {
	mu      sync.RWMutex
	streams map[string]*SharedStreamState
	byAddr  map[string]string

	logger *slog.Logger
}

// NewSharedStreamManager creates an empty manager.
func NewSharedStreamManager(logger *slog.Logger) *SharedStreamManager {
	return &SharedStreamManager{
		streams: make(map[string]*SharedStreamState),
		byAddr:  make(map[string]string),
		logger:  logger,
	}
}

// RegisterSharedStream creates (or returns the existing) SharedStreamState
// for url, subscribing firstSubscriberID to it before the broadcaster task
// is ever started so the broadcaster never observes zero subscribers and
// tears the stream down before the caller can attach. If this call created
// the state, it spawns the broadcaster goroutine that pulls from upstream
// and feeds every subscriber. providerGuard is invoked exactly once, when
// the stream is torn down, to release the provider slot reservation that
// backs it.
func (m *SharedStreamManager) RegisterSharedStream(ctx context.Context, url string, upstream io.ReadCloser, channelCapacity int, providerGuard func(), firstSubscriberID string) (*SharedStreamState, <-chan []byte) {
	m.mu.Lock()
	if existing, ok := m.streams[url]; ok {
		m.mu.Unlock()
		upstream.Close()
		if providerGuard != nil {
			providerGuard()
		}
		return existing, m.Subscribe(ctx, existing, firstSubscriberID)
	}

	capacity := defaultFanoutCapacity
	if channelCapacity > capacity {
		capacity = channelCapacity
	}
	budget := 12 * 1024 * 1024
	if channelCapacity*bytesPerFanoutSlot > budget {
		budget = channelCapacity * bytesPerFanoutSlot
	}

	streamCtx, cancel := context.WithCancel(ctx)
	state := &SharedStreamState{
		url:           url,
		burst:         NewRollingByteBuffer(budget),
		fanout:        make(chan []byte, capacity),
		providerGuard: providerGuard,
		cancel:        cancel,
		subscribers:   make(map[string]*subscriber),
	}
	m.streams[url] = state
	m.mu.Unlock()

	// Subscribe the first viewer synchronously, before the broadcaster task
	// is spawned, so it can never see len(subscribers)==0 and exit early.
	ch := m.Subscribe(ctx, state, firstSubscriberID)

	go m.broadcast(streamCtx, state, upstream)
	return state, ch
}

func (m *SharedStreamManager) broadcast(ctx context.Context, state *SharedStreamState, upstream io.ReadCloser) {
	defer close(state.fanout) // ends every forwarder once the upstream is done
	defer upstream.Close()
	defer m.unregister(state.url)
	defer state.cancel()

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			state.burst.Push(chunk)

			state.mu.RLock()
			active := len(state.subscribers)
			state.mu.RUnlock()
			if active == 0 {
				m.logger.Debug("shared stream has no subscribers, stopping", "url", state.url)
				return
			}
			select {
			case state.fanout <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Warn("shared stream upstream read error", "url", state.url, "error", err)
			}
			return
		}
	}
}

// Subscribe attaches subscriberID to the shared stream and returns a
// channel that first yields a snapshot of the rolling buffer, then forwards
// live fanout items until the subscriber is released or the stream ends.
func (m *SharedStreamManager) Subscribe(ctx context.Context, state *SharedStreamState, subscriberID string) <-chan []byte {
	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscriber{
		id:     subscriberID,
		ch:     make(chan []byte, defaultPerClientBuffer),
		cancel: cancel,
	}

	state.mu.Lock()
	state.subscribers[subscriberID] = sub
	state.mu.Unlock()

	m.mu.Lock()
	m.byAddr[subscriberID] = state.url
	m.mu.Unlock()

	go m.forward(subCtx, state, sub)
	return sub.ch
}

func (m *SharedStreamManager) forward(ctx context.Context, state *SharedStreamState, sub *subscriber) {
	defer close(sub.ch)
	defer m.detach(state, sub.id)

	for _, chunk := range state.burst.Snapshot() {
		select {
		case sub.ch <- chunk:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case chunk, ok := <-state.fanout:
			if !ok {
				return
			}
			select {
			case sub.ch <- chunk:
			case <-ctx.Done():
				return
			default:
				m.logger.Debug("subscriber lagging, dropping chunk", "subscriber", sub.id, "url", state.url)
			}
		}
	}
}

// ReleaseConnection detaches subscriberID. If sendStopSignal is true its
// forwarder goroutine is cancelled immediately rather than left to drain.
func (m *SharedStreamManager) ReleaseConnection(subscriberID string, sendStopSignal bool) {
	m.mu.RLock()
	url, ok := m.byAddr[subscriberID]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.mu.RLock()
	state, ok := m.streams[url]
	m.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.RLock()
	sub, ok := state.subscribers[subscriberID]
	state.mu.RUnlock()
	if !ok {
		return
	}
	if sendStopSignal {
		sub.cancel() // the forwarder detaches itself on exit
		return
	}
	m.detach(state, subscriberID)
}

func (m *SharedStreamManager) detach(state *SharedStreamState, subscriberID string) {
	state.mu.Lock()
	delete(state.subscribers, subscriberID)
	empty := len(state.subscribers) == 0
	state.mu.Unlock()

	m.mu.Lock()
	delete(m.byAddr, subscriberID)
	m.mu.Unlock()

	if empty {
		m.unregister(state.url)
		state.cancel()
	}
}

func (m *SharedStreamManager) unregister(url string) {
	m.mu.Lock()
	state, ok := m.streams[url]
	if ok {
		delete(m.streams, url)
	}
	m.mu.Unlock()
	if ok && state.providerGuard != nil {
		state.providerGuard()
	}
}

// Lookup returns the existing SharedStreamState for url, if any.
func (m *SharedStreamManager) Lookup(url string) (*SharedStreamState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.streams[url]
	return state, ok
}
