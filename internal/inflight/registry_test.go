package inflight_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Amund211/fetchlight/internal/inflight"
	"github.com/stretchr/testify/require"
)

type mockHandle struct {
	name      string
	cancelled atomic.Int32
}

func (h *mockHandle) Cancel() {
	h.cancelled.Add(1)
}

type slot struct {
	name string
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("begin on empty slot", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}
		h := &mockHandle{name: "a"}

		previous, replaced := registry.BeginOrReplace(s, h)
		require.False(t, replaced)
		require.Nil(t, previous)

		current, ok := registry.Current(s)
		require.True(t, ok)
		require.Same(t, h, current)
		require.Equal(t, 1, registry.Len())
	})

	t.Run("replace returns the previous handle without cancelling it", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}
		first := &mockHandle{name: "a"}
		second := &mockHandle{name: "b"}

		registry.BeginOrReplace(s, first)
		previous, replaced := registry.BeginOrReplace(s, second)
		require.True(t, replaced)
		require.Same(t, first, previous)

		// Cancelling is left to the caller
		require.Equal(t, int32(0), first.cancelled.Load())

		current, ok := registry.Current(s)
		require.True(t, ok)
		require.Same(t, second, current)
		require.Equal(t, 1, registry.Len())
	})

	t.Run("slots are independent", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		// Same name, different identity
		s1 := &slot{name: "row"}
		s2 := &slot{name: "row"}

		_, replaced := registry.BeginOrReplace(s1, &mockHandle{name: "a"})
		require.False(t, replaced)
		_, replaced = registry.BeginOrReplace(s2, &mockHandle{name: "b"})
		require.False(t, replaced)

		require.Equal(t, 2, registry.Len())
	})

	t.Run("complete removes the entry", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}
		h := &mockHandle{name: "a"}
		registry.BeginOrReplace(s, h)

		registry.Complete(s)

		_, ok := registry.Current(s)
		require.False(t, ok)
		require.Equal(t, 0, registry.Len())
		require.Equal(t, int32(0), h.cancelled.Load())
	})

	t.Run("complete on absent slot is a no-op", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}

		require.NotPanics(t, func() {
			registry.Complete(s)
			registry.Complete(s)
		})
		require.Equal(t, 0, registry.Len())
	})

	t.Run("complete if current", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}
		first := &mockHandle{name: "a"}
		second := &mockHandle{name: "b"}

		registry.BeginOrReplace(s, first)
		registry.BeginOrReplace(s, second)

		require.False(t, registry.IsCurrent(s, first))
		require.False(t, registry.CompleteIfCurrent(s, first), "stale handle must not complete")
		require.Equal(t, 1, registry.Len())

		require.True(t, registry.IsCurrent(s, second))
		require.True(t, registry.CompleteIfCurrent(s, second))
		require.Equal(t, 0, registry.Len())

		require.False(t, registry.CompleteIfCurrent(s, second), "already completed")
	})

	t.Run("cancel cancels and removes", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}
		h := &mockHandle{name: "a"}
		registry.BeginOrReplace(s, h)

		registry.Cancel(s)

		require.Equal(t, int32(1), h.cancelled.Load())
		_, ok := registry.Current(s)
		require.False(t, ok)

		// Absent slot
		registry.Cancel(s)
		require.Equal(t, int32(1), h.cancelled.Load())
	})

	t.Run("cancel may re-enter the registry", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *reentrantHandle]()
		s := &slot{name: "row1"}
		h := &reentrantHandle{registry: registry, slot: s}
		registry.BeginOrReplace(s, h)

		registry.Cancel(s)

		require.True(t, h.cancelled)
		require.False(t, h.wasCurrent)
	})

	t.Run("concurrent replacement keeps exactly one entry", func(t *testing.T) {
		t.Parallel()
		registry := inflight.NewRegistry[*slot, *mockHandle]()
		s := &slot{name: "row1"}

		handles := make([]*mockHandle, 100)
		for i := range handles {
			handles[i] = &mockHandle{}
		}

		var replacedCount atomic.Int32
		wg := sync.WaitGroup{}
		for _, h := range handles {
			wg.Go(func() {
				previous, replaced := registry.BeginOrReplace(s, h)
				if replaced {
					replacedCount.Add(1)
					previous.Cancel()
				}
			})
		}
		wg.Wait()

		require.Equal(t, 1, registry.Len())
		require.Equal(t, int32(len(handles)-1), replacedCount.Load())

		current, ok := registry.Current(s)
		require.True(t, ok)

		totalCancels := int32(0)
		for _, h := range handles {
			cancels := h.cancelled.Load()
			require.LessOrEqual(t, cancels, int32(1))
			if h == current {
				require.Equal(t, int32(0), cancels)
			}
			totalCancels += cancels
		}
		require.Equal(t, int32(len(handles)-1), totalCancels)
	})
}

type reentrantHandle struct {
	registry   *inflight.Registry[*slot, *reentrantHandle]
	slot       *slot
	cancelled  bool
	wasCurrent bool
}

func (h *reentrantHandle) Cancel() {
	h.cancelled = true
	h.wasCurrent = h.registry.CompleteIfCurrent(h.slot, h)
}
