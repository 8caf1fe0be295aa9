package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"mazequiz/internal/websocket"
	"mazequiz/pkg/types"
)

type fakeEmitter struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEmitter) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == event {
			n++
		}
	}
	return n
}

func TestHubStartStopLifecycle(t *testing.T) {
	h := NewHub(websocket.NewRegistry(nil, nil, nil, nil))

	if err := h.Stop(); err != ErrHubNotRunning {
		t.Errorf("Stop before Start: err = %v, want ErrHubNotRunning", err)
	}

	ctx := context.Background()
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := h.Start(ctx); err != ErrHubAlreadyRunning {
		t.Errorf("second Start: err = %v, want ErrHubAlreadyRunning", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
}

func TestSubmitRequiresRunningHub(t *testing.T) {
	h := NewHub(websocket.NewRegistry(nil, nil, nil, nil))

	err := h.Submit("conn", &types.Envelope{Event: types.EventStartQuiz})
	if err != ErrHubNotRunning {
		t.Fatalf("err = %v, want ErrHubNotRunning", err)
	}
}

func TestSubmitDispatchesToClient(t *testing.T) {
	registry := websocket.NewRegistry(nil, nil, nil, nil)
	h := NewHub(registry)

	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = h.Stop() }()

	emitter := &fakeEmitter{}
	client, err := registry.Register("u1", "alice", emitter)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.OnDisconnect(client)

	// An unrecognized event reaches the dispatcher and comes back as a
	// notification, proving the queue -> dispatch path works.
	if err := h.Submit(client.ID(), &types.Envelope{Event: "BOGUS"}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if emitter.count(types.EventNotify) == 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("submitted event was never dispatched")
}

func TestSubmitUnknownConnectionIsLoggedNotFatal(t *testing.T) {
	h := NewHub(websocket.NewRegistry(nil, nil, nil, nil))

	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = h.Stop() }()

	if err := h.Submit("missing", &types.Envelope{Event: types.EventStartQuiz}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// The hub keeps running after a dispatch failure.
	time.Sleep(20 * time.Millisecond)
	if err := h.Submit("missing", &types.Envelope{Event: types.EventStartQuiz}); err != nil {
		t.Fatalf("Submit after failed dispatch: %v", err)
	}
}
