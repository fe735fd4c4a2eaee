package querycache

// Observer marks a key as in use. Updates delivers snapshots latest-wins:
// a slow reader only ever sees the newest state.
type Observer struct {
	cache   *Cache
	key     Key
	updates chan Snapshot
	closed  bool
}

func (o *Observer) Key() Key { return o.key }

// Updates is closed when the observer or its cache is closed.
func (o *Observer) Updates() <-chan Snapshot { return o.updates }

func (o *Observer) Snapshot() (Snapshot, bool) { return o.cache.Peek(o.key) }

// Close stops refetch-on-invalidate for this observer. Safe to call twice.
func (o *Observer) Close() {
	o.cache.mu.Lock()
	defer o.cache.mu.Unlock()
	if e, ok := o.cache.entries[o.key.id()]; ok {
		delete(e.observers, o)
	}
	o.closeLocked()
}

// push and closeLocked run under the cache mutex.
func (o *Observer) push(s Snapshot) {
	if o.closed {
		return
	}
	select {
	case o.updates <- s:
		return
	default:
	}
	select {
	case <-o.updates:
	default:
	}
	select {
	case o.updates <- s:
	default:
	}
}

func (o *Observer) closeLocked() {
	if o.closed {
		return
	}
	o.closed = true
	close(o.updates)
}
