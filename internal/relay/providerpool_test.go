package relay

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jmylchreest/streamgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProviderPool_UnlimitedAlwaysAvailable(t *testing.T) {
	p := NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 0, Priority: 10}}, time.Second, nil, slog.Default())

	for i := 0; i < 5; i++ {
		alloc := p.GetNextProvider("provA")
		require.False(t, alloc.Exhausted())
		assert.Equal(t, models.AllocationAvailable, alloc.Kind)
	}
}

func TestProviderPool_GraceThenExhausted(t *testing.T) {
	p := NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 1, Priority: 10}}, time.Minute, nil, slog.Default())

	first := p.GetNextProvider("provA")
	require.Equal(t, models.AllocationAvailable, first.Kind)

	second := p.GetNextProvider("provA")
	require.Equal(t, models.AllocationGracePeriod, second.Kind)

	third := p.GetNextProvider("provA")
	assert.True(t, third.Exhausted())
}

func TestProviderPool_PriorityOrderingFallsBack(t *testing.T) {
	p := NewProviderPool([]ProviderInputConfig{
		{Name: "provA", MaxConnections: 1, Priority: 10},
		{Name: "provB", MaxConnections: 1, Priority: 5},
	}, time.Second, nil, slog.Default())

	first := p.GetNextProvider("input")
	assert.True(t, first.Exhausted(), "no slots registered under 'input'")

	firstA := p.GetNextProvider("provA")
	require.False(t, firstA.Exhausted())
	assert.Equal(t, "provA", firstA.Slot.ProviderName)

	// With provB as a lower-priority alias, a full provA falls back to provB.
	aliased := NewProviderPool([]ProviderInputConfig{{
		Name: "provA", MaxConnections: 1, Priority: 10,
		Aliases: []ProviderInputConfig{{Name: "provB", MaxConnections: 1, Priority: 5}},
	}}, time.Second, nil, slog.Default())

	primary := aliased.GetNextProvider("provA")
	require.False(t, primary.Exhausted())
	assert.Equal(t, "provA", primary.Slot.ProviderName)

	fallback := aliased.GetNextProvider("provA")
	require.False(t, fallback.Exhausted())
	assert.Equal(t, "provB", fallback.Slot.ProviderName)
}

func TestProviderPool_ReleaseFreesCapacity(t *testing.T) {
	p := NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 1, Priority: 10}}, time.Minute, nil, slog.Default())

	alloc := p.GetNextProvider("provA")
	require.False(t, alloc.Exhausted())
	p.Release(alloc)

	second := p.GetNextProvider("provA")
	assert.Equal(t, models.AllocationAvailable, second.Kind)
}

func TestProviderPool_ExpiredSlotAlwaysExhausted(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	p := NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 0, ExpDate: &past}}, time.Minute, nil, slog.Default())

	alloc := p.GetNextProvider("provA")
	assert.True(t, alloc.Exhausted())
}

func TestProviderPool_ChangeCallbackInvoked(t *testing.T) {
	var seen []int
	onChange := func(name string, value int) {
		seen = append(seen, value)
	}
	p := NewProviderPool([]ProviderInputConfig{{Name: "provA", MaxConnections: 2, Priority: 10}}, time.Minute, onChange, slog.Default())

	p.GetNextProvider("provA")
	require.NotEmpty(t, seen)
	assert.Equal(t, 1, seen[0])
}
