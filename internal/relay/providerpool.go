package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/jmylchreest/streamgate/pkg/httpclient"
)

// ProviderInputConfig is one upstream definition consumed by the pool at
// construction. Aliases share the same ordering/priority semantics as a
// top-level input; the pool flattens name+aliases into one priority-ordered
// slot list per logical input name.
type ProviderInputConfig struct {
	Name           string
	Aliases        []ProviderInputConfig
	MaxConnections int
	Priority       int16
	ExpDate        *time.Time
}

// slotEntry pairs a ProviderSlot with its own lock and health circuit, so
// mutations to one slot never contend with another.
type slotEntry struct {
	mu      sync.Mutex
	slot    *models.ProviderSlot
	breaker *httpclient.CircuitBreaker
}

// ChangeCallback observes every transition of a slot's current_connections.
type ChangeCallback func(providerName string, newValue int)

// ProviderPool holds the priority-ordered admission slots for every
// configured input and arbitrates capacity across them.
type ProviderPool struct {
	graceTimeout time.Duration
	onChange     ChangeCallback
	logger       *slog.Logger
	breakers     *httpclient.CircuitBreakerManager

	mu     sync.RWMutex
	inputs map[string][]*slotEntry
	cursor map[string]*int
}

// NewProviderPool flattens the configured inputs (and their aliases) into
// priority-sorted slot lists, one list per logical input name.
func NewProviderPool(configs []ProviderInputConfig, graceTimeout time.Duration, onChange ChangeCallback, logger *slog.Logger) *ProviderPool {
	p := &ProviderPool{
		graceTimeout: graceTimeout,
		onChange:     onChange,
		logger:       logger,
		breakers:     httpclient.NewCircuitBreakerManager(nil),
		inputs:       make(map[string][]*slotEntry),
		cursor:       make(map[string]*int),
	}
	for _, cfg := range configs {
		p.addInput(cfg.Name, cfg)
	}
	return p
}

func (p *ProviderPool) addInput(inputName string, cfg ProviderInputConfig) {
	entries := p.inputs[inputName]
	entries = append(entries, p.newSlotEntry(cfg))
	for _, alias := range cfg.Aliases {
		entries = append(entries, p.newSlotEntry(alias))
	}
	sortSlotsByPriority(entries)
	p.inputs[inputName] = entries
	zero := 0
	p.cursor[inputName] = &zero
}

func (p *ProviderPool) newSlotEntry(cfg ProviderInputConfig) *slotEntry {
	return &slotEntry{
		slot: &models.ProviderSlot{
			ProviderName:   cfg.Name,
			MaxConnections: cfg.MaxConnections,
			Priority:       cfg.Priority,
			ExpDate:        cfg.ExpDate,
		},
		breaker: p.breakers.GetOrCreate(cfg.Name),
	}
}

func sortSlotsByPriority(entries []*slotEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].slot.Priority > entries[j-1].slot.Priority; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// tryAllocate implements the per-slot admission state machine. Callers must
// not hold e.mu.
func (p *ProviderPool) tryAllocate(e *slotEntry, graceAllowed bool) models.ProviderAllocation {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if e.slot.Expired(now) {
		return models.ExhaustedAllocation
	}
	if !e.breaker.Allow() {
		return models.ExhaustedAllocation
	}

	s := e.slot
	if s.MaxConnections == 0 {
		s.CurrentConnections++
		p.notify(s)
		return models.ProviderAllocation{Kind: models.AllocationAvailable, Slot: s}
	}

	if s.CurrentConnections < s.MaxConnections {
		s.GrantedGrace = false
		s.GraceTS = time.Time{}
		s.CurrentConnections++
		p.notify(s)
		return models.ProviderAllocation{Kind: models.AllocationAvailable, Slot: s}
	}

	if graceAllowed && s.CurrentConnections == s.MaxConnections {
		if s.GrantedGrace && now.Sub(s.GraceTS) <= p.graceTimeout {
			return models.ExhaustedAllocation
		}
		s.GrantedGrace = true
		s.GraceTS = now
		s.CurrentConnections++
		p.notify(s)
		return models.ProviderAllocation{Kind: models.AllocationGracePeriod, Slot: s}
	}

	return models.ExhaustedAllocation
}

func (p *ProviderPool) notify(s *models.ProviderSlot) {
	if p.onChange != nil {
		p.onChange(s.ProviderName, s.CurrentConnections)
	}
}

// GetNextProvider iterates inputName's slots in priority order (breaking
// ties by a round-robin cursor) and returns the first non-exhausted
// allocation.
func (p *ProviderPool) GetNextProvider(inputName string) models.ProviderAllocation {
	p.mu.RLock()
	entries := p.inputs[inputName]
	cursor := p.cursor[inputName]
	p.mu.RUnlock()
	if len(entries) == 0 {
		return models.ExhaustedAllocation
	}

	start := 0
	if cursor != nil {
		start = *cursor % len(entries)
		*cursor++
	}

	// entries are sorted by descending priority; the cursor only rotates the
	// starting slot within each run of equal priority.
	order := make([]int, 0, len(entries))
	for lo := 0; lo < len(entries); {
		hi := lo
		for hi < len(entries) && entries[hi].slot.Priority == entries[lo].slot.Priority {
			hi++
		}
		for k := 0; k < hi-lo; k++ {
			order = append(order, lo+(start+k)%(hi-lo))
		}
		lo = hi
	}

	graceAllowed := false
	for pass := 0; pass < 2; pass++ {
		for _, idx := range order {
			alloc := p.tryAllocate(entries[idx], graceAllowed)
			if !alloc.Exhausted() {
				return alloc
			}
		}
		graceAllowed = true
	}
	return models.ExhaustedAllocation
}

// ForceAllocate bypasses the capacity check (but not expiry) for "must
// succeed" session continuations.
func (p *ProviderPool) ForceAllocate(providerName string) models.ProviderAllocation {
	e := p.findSlot(providerName)
	if e == nil {
		return models.ExhaustedAllocation
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.slot.Expired(time.Now()) {
		return models.ExhaustedAllocation
	}
	e.slot.CurrentConnections++
	p.notify(e.slot)
	return models.ProviderAllocation{Kind: models.AllocationAvailable, Slot: e.slot}
}

// ForceExactAcquireConnection reacquires a connection against a specific
// named slot, used when reconnecting an existing session to the provider it
// was originally assigned, regardless of priority ordering.
func (p *ProviderPool) ForceExactAcquireConnection(providerName string) models.ProviderAllocation {
	return p.ForceAllocate(providerName)
}

// Release returns alloc's reservation to its slot.
func (p *ProviderPool) Release(alloc models.ProviderAllocation) {
	if alloc.Exhausted() || alloc.Slot == nil {
		return
	}
	e := p.findSlot(alloc.Slot.ProviderName)
	if e == nil {
		return
	}
	e.mu.Lock()
	if e.slot.CurrentConnections > 0 {
		e.slot.CurrentConnections--
	}
	if e.slot.CurrentConnections <= e.slot.MaxConnections {
		e.slot.GrantedGrace = false
	}
	p.notify(e.slot)
	e.mu.Unlock()
}

// IsOverLimit reports whether providerName's slot is currently serving more
// connections than its cap allows, used by the client stream to fail a
// grace-holder that has outstayed its window.
func (p *ProviderPool) IsOverLimit(providerName string) bool {
	e := p.findSlot(providerName)
	if e == nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.slot.MaxConnections > 0 && e.slot.CurrentConnections > e.slot.MaxConnections
}

// RecordUpstreamFailure/RecordUpstreamSuccess feed the slot's health
// circuit, so repeated dial/connect failures make TryAllocate skip the slot
// without touching its connection count.
func (p *ProviderPool) RecordUpstreamFailure(providerName string) {
	if e := p.findSlot(providerName); e != nil {
		e.breaker.RecordFailure()
	}
}

func (p *ProviderPool) RecordUpstreamSuccess(providerName string) {
	if e := p.findSlot(providerName); e != nil {
		e.breaker.RecordSuccess()
	}
}

// Snapshot returns a point-in-time copy of every slot's state, grouped by
// input name, for the admin introspection endpoint.
func (p *ProviderPool) Snapshot() map[string][]models.ProviderSlot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string][]models.ProviderSlot, len(p.inputs))
	for name, entries := range p.inputs {
		slots := make([]models.ProviderSlot, 0, len(entries))
		for _, e := range entries {
			e.mu.Lock()
			slots = append(slots, *e.slot)
			e.mu.Unlock()
		}
		out[name] = slots
	}
	return out
}

// CircuitBreakers exposes the pool's per-provider health circuits so the
// health endpoint can report them.
func (p *ProviderPool) CircuitBreakers() *httpclient.CircuitBreakerManager {
	return p.breakers
}

func (p *ProviderPool) findSlot(providerName string) *slotEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, entries := range p.inputs {
		for _, e := range entries {
			if e.slot.ProviderName == providerName {
				return e
			}
		}
	}
	return nil
}
