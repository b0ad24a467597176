package inflight

import "sync"

// Cancellable is an outstanding operation that can be told to stop.
//
// Handles are compared by identity, so implementations are typically pointers.
type Cancellable interface {
	comparable
	Cancel()
}

// Registry tracks at most one outstanding handle per slot.
//
// A slot is any comparable identity chosen by the caller, e.g. the view that is
// currently displaying an image. Installing a handle for an occupied slot hands
// back the previous handle so the caller can cancel it.
type Registry[K comparable, H Cancellable] struct {
	handles map[K]H
	lock    sync.Mutex
}

func NewRegistry[K comparable, H Cancellable]() *Registry[K, H] {
	return &Registry[K, H]{
		handles: make(map[K]H),
	}
}

// BeginOrReplace installs handle for slot and returns the handle it replaced
func (r *Registry[K, H]) BeginOrReplace(slot K, handle H) (H, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	previous, replaced := r.handles[slot]
	r.handles[slot] = handle
	return previous, replaced
}

// Complete removes the entry for slot. Completing an absent slot is a no-op.
func (r *Registry[K, H]) Complete(slot K) {
	r.lock.Lock()
	defer r.lock.Unlock()

	delete(r.handles, slot)
}

// CompleteIfCurrent removes the entry for slot only if it still holds handle.
//
// Returns false when handle has been replaced or cancelled, in which case the
// caller must treat its result as stale.
func (r *Registry[K, H]) CompleteIfCurrent(slot K, handle H) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	current, ok := r.handles[slot]
	if !ok || current != handle {
		return false
	}

	delete(r.handles, slot)
	return true
}

func (r *Registry[K, H]) IsCurrent(slot K, handle H) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	current, ok := r.handles[slot]
	return ok && current == handle
}

// Cancel removes the entry for slot and cancels it, if present.
func (r *Registry[K, H]) Cancel(slot K) {
	r.lock.Lock()
	handle, ok := r.handles[slot]
	delete(r.handles, slot)
	r.lock.Unlock()

	// The handle may call back into the registry when cancelled
	if ok {
		handle.Cancel()
	}
}

func (r *Registry[K, H]) Current(slot K) (H, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	handle, ok := r.handles[slot]
	return handle, ok
}

func (r *Registry[K, H]) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()

	return len(r.handles)
}
