package hub

import (
	"context"
	"log"
	"sync"
	"time"

	"mazequiz/internal/websocket"
	"mazequiz/pkg/types"
)

// Hub serializes inbound events from all connections through a single
// goroutine. Chapter and round sequencing relies on this: two events
// from the same user are never dispatched concurrently.
type Hub struct {
	eventChannel    chan *eventContext
	shutdownChannel chan struct{}

	registry *websocket.Registry

	running bool
	mu      sync.RWMutex
}

type eventContext struct {
	connID   string
	envelope *types.Envelope
	received time.Time
}

// NewHub creates a hub over the registry's dispatcher.
func NewHub(registry *websocket.Registry) *Hub {
	return &Hub{
		eventChannel:    make(chan *eventContext, 1000),
		shutdownChannel: make(chan struct{}),
		registry:        registry,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.mu.Unlock()

	log.Println("Starting event hub...")
	go h.run(ctx)

	return nil
}

// Stop shuts the hub down. Queued events are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	log.Println("Stopping event hub...")

	select {
	case <-h.shutdownChannel:
	default:
		close(h.shutdownChannel)
	}

	return nil
}

// Submit queues one inbound envelope for dispatch. Non-blocking: a full
// queue fails fast so the read pump can tell the client to back off.
func (h *Hub) Submit(connID string, env *types.Envelope) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	evt := &eventContext{
		connID:   connID,
		envelope: env,
		received: time.Now(),
	}

	select {
	case h.eventChannel <- evt:
		return nil
	default:
		return ErrEventChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	for {
		select {
		case evt := <-h.eventChannel:
			h.handleEvent(ctx, evt)

		case <-h.shutdownChannel:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			return
		}
	}
}

// handleEvent dispatches one event; failures are logged and never
// crash the loop.
func (h *Hub) handleEvent(ctx context.Context, evt *eventContext) {
	if err := h.registry.Dispatch(ctx, evt.connID, evt.envelope); err != nil {
		log.Printf("Event dispatch failed: event=%s conn=%s: %v", evt.envelope.Event, evt.connID, err)
		return
	}
	log.Printf("Event dispatched: event=%s conn=%s queued=%s", evt.envelope.Event, evt.connID, time.Since(evt.received))
}
