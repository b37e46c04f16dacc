package broadcast

import (
	"log"
	"sync"

	"github.com/podlab/podcast-backend-go/internal/models"
)

// defaultQueueSize bounds each observer's snapshot queue so one slow
// consumer cannot stall delivery to the others.
const defaultQueueSize = 16

// Observer consumes task snapshots. Send blocking only affects this
// observer's pump goroutine; a Send error removes the observer.
type Observer interface {
	Send(snapshot *models.Task) error
}

// SnapshotSource provides the current snapshot for late joiners.
type SnapshotSource interface {
	Get(id string) (*models.Task, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	id       int
	taskID   string
	observer Observer
	queue    chan *models.Task
	closed   bool // guarded by the registry mutex
}

// Registry fans the current snapshot of a task out to every observer
// registered for that task id. Each subscription owns a bounded queue
// drained by its own goroutine; on overflow the oldest snapshot is dropped,
// which is safe because every delivery is a full self-consistent snapshot.
type Registry struct {
	mu        sync.Mutex
	subs      map[string]map[int]*Subscription
	source    SnapshotSource
	nextID    int
	queueSize int
}

// NewRegistry creates a Registry. queueSize <= 0 selects the default.
func NewRegistry(queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Registry{
		subs:      make(map[string]map[int]*Subscription),
		queueSize: queueSize,
	}
}

// SetSource wires the snapshot source used to serve late joiners. Set once
// at startup, before any Subscribe call.
func (r *Registry) SetSource(source SnapshotSource) {
	r.mu.Lock()
	r.source = source
	r.mu.Unlock()
}

// Subscribe registers an observer for a task id. If the task exists its
// current snapshot is delivered immediately to this observer only, so late
// joiners are never behind.
func (r *Registry) Subscribe(taskID string, observer Observer) *Subscription {
	r.mu.Lock()
	r.nextID++
	sub := &Subscription{
		id:       r.nextID,
		taskID:   taskID,
		observer: observer,
		queue:    make(chan *models.Task, r.queueSize),
	}
	if _, ok := r.subs[taskID]; !ok {
		r.subs[taskID] = make(map[int]*Subscription)
	}
	r.subs[taskID][sub.id] = sub
	source := r.source
	r.mu.Unlock()

	go r.pump(sub)

	if source != nil {
		if snap, err := source.Get(taskID); err == nil {
			r.push(sub, snap)
		}
	}
	return sub
}

// Unsubscribe removes the observer. Removing the last observer for a task
// id frees that task's entry.
func (r *Registry) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(sub)
}

// Publish delivers the snapshot to every observer currently registered for
// the task id. It is called by the store under the same per-task
// serialization as the mutation, so observers see snapshots in mutation
// order. Enqueueing never blocks.
func (r *Registry) Publish(taskID string, snapshot *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subs[taskID] {
		r.pushLocked(sub, snapshot)
	}
}

// Observers reports how many observers are registered for a task id.
func (r *Registry) Observers(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs[taskID])
}

func (r *Registry) push(sub *Subscription, snap *models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushLocked(sub, snap)
}

// pushLocked enqueues with a drop-oldest overflow policy. Caller holds r.mu,
// which also excludes a concurrent close of the queue.
func (r *Registry) pushLocked(sub *Subscription, snap *models.Task) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.queue <- snap:
			return
		default:
		}
		select {
		case <-sub.queue: // drop the oldest queued snapshot
		default:
		}
	}
}

// remove deletes the subscription and closes its queue. Caller holds r.mu.
func (r *Registry) remove(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.queue)

	set, ok := r.subs[sub.taskID]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(r.subs, sub.taskID)
	}
}

// pump drains one subscription's queue. A failed delivery unsubscribes that
// observer and never affects the others.
func (r *Registry) pump(sub *Subscription) {
	for snap := range sub.queue {
		if err := sub.observer.Send(snap); err != nil {
			log.Printf("broadcast: dropping observer for task %s: %v", sub.taskID, err)
			r.Unsubscribe(sub)
			return
		}
	}
}
