package broadcast

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/podlab/podcast-backend-go/internal/models"
)

type collectObserver struct {
	ch chan *models.Task
}

func newCollectObserver() *collectObserver {
	return &collectObserver{ch: make(chan *models.Task, 64)}
}

func (o *collectObserver) Send(snap *models.Task) error {
	o.ch <- snap
	return nil
}

func (o *collectObserver) wait(t *testing.T) *models.Task {
	t.Helper()
	select {
	case snap := <-o.ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return nil
	}
}

func (o *collectObserver) expectNone(t *testing.T) {
	t.Helper()
	select {
	case snap := <-o.ch:
		t.Fatalf("unexpected snapshot delivered: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

type failingObserver struct {
	calls chan struct{}
}

func (o *failingObserver) Send(*models.Task) error {
	o.calls <- struct{}{}
	return errors.New("connection closed")
}

type staticSource struct {
	task *models.Task
}

func (s *staticSource) Get(id string) (*models.Task, error) {
	if s.task == nil || s.task.ID != id {
		return nil, errors.New("task not found")
	}
	return s.task.Clone(), nil
}

func sampleTask(id string) *models.Task {
	return &models.Task{
		ID:     id,
		Status: models.TaskStatusProcessing,
		Stages: []models.Stage{{ID: "fetch", Status: models.StageStatusRunning, Logs: []models.StageLog{}}},
	}
}

func TestObserversReceiveIdenticalSnapshots(t *testing.T) {
	r := NewRegistry(0)

	a := newCollectObserver()
	b := newCollectObserver()
	r.Subscribe("t1", a)
	r.Subscribe("t1", b)

	r.Publish("t1", sampleTask("t1"))

	gotA, _ := json.Marshal(a.wait(t))
	gotB, _ := json.Marshal(b.wait(t))
	if string(gotA) != string(gotB) {
		t.Errorf("observers saw different snapshots:\n%s\n%s", gotA, gotB)
	}
}

func TestLateJoinerGetsImmediateSnapshot(t *testing.T) {
	r := NewRegistry(0)
	r.SetSource(&staticSource{task: sampleTask("t1")})

	obs := newCollectObserver()
	r.Subscribe("t1", obs)

	snap := obs.wait(t)
	if snap.ID != "t1" {
		t.Errorf("snapshot id = %q, want t1", snap.ID)
	}
}

func TestSubscribeToMissingTaskDeliversNothing(t *testing.T) {
	r := NewRegistry(0)
	r.SetSource(&staticSource{})

	obs := newCollectObserver()
	r.Subscribe("ghost", obs)
	obs.expectNone(t)
}

func TestFailedDeliveryRemovesOnlyThatObserver(t *testing.T) {
	r := NewRegistry(0)

	bad := &failingObserver{calls: make(chan struct{}, 1)}
	good := newCollectObserver()
	r.Subscribe("t1", bad)
	r.Subscribe("t1", good)

	r.Publish("t1", sampleTask("t1"))

	if snap := good.wait(t); snap.ID != "t1" {
		t.Errorf("healthy observer got snapshot for %q", snap.ID)
	}
	<-bad.calls

	deadline := time.Now().Add(2 * time.Second)
	for r.Observers("t1") != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("observer count = %d, want 1 after failed delivery", r.Observers("t1"))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestUnsubscribeFreesTaskEntry(t *testing.T) {
	r := NewRegistry(0)

	sub1 := r.Subscribe("t1", newCollectObserver())
	sub2 := r.Subscribe("t1", newCollectObserver())

	r.Unsubscribe(sub1)
	if got := r.Observers("t1"); got != 1 {
		t.Fatalf("observer count = %d, want 1", got)
	}
	r.Unsubscribe(sub2)
	r.Unsubscribe(sub2) // double unsubscribe is harmless

	if got := r.Observers("t1"); got != 0 {
		t.Fatalf("observer count = %d, want 0", got)
	}
	r.mu.Lock()
	_, exists := r.subs["t1"]
	r.mu.Unlock()
	if exists {
		t.Error("empty observer set not freed")
	}
}

func TestSlowObserverDropsOldestNotNewest(t *testing.T) {
	r := NewRegistry(2)

	blocked := make(chan struct{})
	obs := &gateObserver{gate: blocked, got: make(chan *models.Task, 64)}
	r.Subscribe("t1", obs)

	// First delivery parks the pump inside Send; the queue then overflows.
	for i := 0; i < 6; i++ {
		snap := sampleTask("t1")
		snap.OverallProgress = i * 10
		r.Publish("t1", snap)
	}
	close(blocked)

	var last *models.Task
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-obs.got:
			last = snap
			if last.OverallProgress == 50 {
				return // newest snapshot survived the overflow
			}
		case <-deadline:
			t.Fatalf("never saw the newest snapshot; last progress %v", last)
		}
	}
}

type gateObserver struct {
	gate <-chan struct{}
	got  chan *models.Task
}

func (o *gateObserver) Send(snap *models.Task) error {
	<-o.gate
	o.got <- snap
	return nil
}
