package transfer

import "sync"

// Snapshot is one progress message pushed to a watcher. Progress holds an
// ExportProgress, an UploadProgress or the uploaded byte count.
type Snapshot struct {
	Status   string `json:"status"`
	Progress any    `json:"progress,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Terminal reports whether no further snapshots will follow
func (s Snapshot) Terminal() bool {
	return IsTerminal(s.Status)
}

// Subscription is the single live watcher of one job. Only the latest
// unread snapshot is kept.
type Subscription struct {
	key    string
	broker *Broker
	ch     chan Snapshot
	done   chan struct{}
	once   sync.Once
}

// C delivers snapshots published for the job
func (s *Subscription) C() <-chan Snapshot {
	return s.ch
}

// Done is closed when the subscription was replaced, dropped or closed
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Pending returns an unread snapshot, if any
func (s *Subscription) Pending() (Snapshot, bool) {
	select {
	case snap := <-s.ch:
		return snap, true
	default:
		return Snapshot{}, false
	}
}

// Close deregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s)
}

func (s *Subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

// Broker routes snapshots from processors to at most one watcher per
// (owner, job) pair
type Broker struct {
	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewBroker creates an empty broker
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]*Subscription)}
}

func subscriptionKey(ownerID, jobID string) string {
	return ownerID + "-" + jobID
}

// Subscribe registers a watcher, replacing and stopping any previous one for
// the same key
func (b *Broker) Subscribe(ownerID, jobID string) *Subscription {
	sub := &Subscription{
		key:    subscriptionKey(ownerID, jobID),
		broker: b,
		ch:     make(chan Snapshot, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.subs[sub.key]; ok {
		prev.stop()
	}
	b.subs[sub.key] = sub

	return sub
}

// Publish hands snap to the job's watcher without blocking. It returns false
// when nobody is watching. An unread snapshot is replaced, so a slow watcher
// may skip intermediate ones but always gets the latest.
func (b *Broker) Publish(ownerID, jobID string, snap Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.subs[subscriptionKey(ownerID, jobID)]
	if !ok {
		return false
	}

	select {
	case sub.ch <- snap:
	default:
		// drop the stale snapshot, publishers are serialized by b.mu
		select {
		case <-sub.ch:
		default:
		}
		sub.ch <- snap
	}

	return true
}

// Drop stops and deregisters the job's watcher
func (b *Broker) Drop(ownerID, jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subscriptionKey(ownerID, jobID)
	if sub, ok := b.subs[key]; ok {
		sub.stop()
		delete(b.subs, key)
	}
}

// Subscribed reports whether the job currently has a watcher
func (b *Broker) Subscribed(ownerID, jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.subs[subscriptionKey(ownerID, jobID)]
	return ok
}

// Close stops every watcher
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, sub := range b.subs {
		sub.stop()
		delete(b.subs, key)
	}
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub.stop()
	if current, ok := b.subs[sub.key]; ok && current == sub {
		delete(b.subs, sub.key)
	}
}
