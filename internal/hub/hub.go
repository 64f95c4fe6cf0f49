package hub

import (
	"context"
	"log"
	"sync"
)

// Hub serializes all state-mutating work onto a single goroutine: inbound
// events, disconnects and poll-close timer callbacks are all submitted as
// tasks and run to completion in arrival order. This is the cooperative,
// non-preemptive handling model the coordination engine assumes.
type Hub struct {
	tasks    chan func()
	shutdown chan struct{}

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub. The task buffer absorbs bursts from many
// simultaneous connections without blocking their read loops.
func NewHub() *Hub {
	return &Hub{
		tasks:    make(chan func(), 1000),
		shutdown: make(chan struct{}),
	}
}

// Start begins task processing.
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

// Stop shuts down the hub. Queued tasks that have not started are dropped.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	select {
	case <-h.shutdown:
	default:
		close(h.shutdown)
	}
	return nil
}

// Submit queues a task for serialized execution.
func (h *Hub) Submit(task func()) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.tasks <- task:
		return nil
	default:
		return ErrTaskChannelFull
	}
}

func (h *Hub) run(ctx context.Context) {
	defer log.Println("Hub processing stopped")

	for {
		select {
		case task := <-h.tasks:
			task()
		case <-h.shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}
