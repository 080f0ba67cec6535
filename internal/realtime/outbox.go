package realtime

import "sync"

// outbox orders events queued under per-key locks and publishes them after
// those locks are released. Events are published in queue order.
type outbox struct {
	mu      sync.Mutex
	pending []Event

	// serializes publishing so queue order is publish order
	flushMu sync.Mutex
}

func (o *outbox) push(evt Event) {
	o.mu.Lock()
	o.pending = append(o.pending, evt)
	o.mu.Unlock()
}

// flush publishes everything queued so far. When it returns, every event
// pushed before the call has been published, by this caller or another.
func (o *outbox) flush(publish func(Event)) {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, evt := range batch {
		publish(evt)
	}
}
