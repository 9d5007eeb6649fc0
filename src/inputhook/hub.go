// Package inputhook owns the process-wide gohook event stream and fans it out
// to the hotkey listener and the capture pointer source.
package inputhook

import (
	"errors"
	"log"
	"sync"

	gohook "github.com/robotn/gohook"
)

var ErrHookUnavailable = errors.New("input hook unavailable")

type subscriber struct {
	ch   chan gohook.Event
	done chan struct{}
	once sync.Once
}

// Hub is the only caller of gohook.Start. gohook keeps a single global
// channel, so every consumer must go through a Hub.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	next    int
	running bool
	closed  bool

	start func() chan gohook.Event
	stop  func()
}

func NewHub() *Hub {
	return newHub(gohook.Start, gohook.End)
}

func newHub(start func() chan gohook.Event, stop func()) *Hub {
	return &Hub{subs: make(map[int]*subscriber), start: start, stop: stop}
}

// Subscribe registers a consumer. The returned func unsubscribes; the channel
// is closed only when the hook itself stops.
func (h *Hub) Subscribe(buffer int) (<-chan gohook.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := &subscriber{ch: make(chan gohook.Event, buffer), done: make(chan struct{})}
	if h.closed {
		close(s.ch)
		return s.ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = s

	return s.ch, func() {
		s.once.Do(func() { close(s.done) })
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
}

// Start installs the hook once. Later calls are no-ops.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return nil
	}
	if h.closed {
		h.mu.Unlock()
		return ErrHookUnavailable
	}
	h.running = true
	h.mu.Unlock()

	evChan := h.start()
	if evChan == nil {
		log.Printf("ERROR: gohook.Start() returned nil channel")
		h.mu.Lock()
		h.running = false
		h.mu.Unlock()
		return ErrHookUnavailable
	}
	log.Printf("inputhook: hook started")

	go h.pump(evChan)
	return nil
}

// Stop uninstalls the hook; pending subscribers see their channels close.
func (h *Hub) Stop() {
	h.mu.Lock()
	running := h.running
	h.mu.Unlock()
	if running && h.stop != nil {
		h.stop()
	}
}

func (h *Hub) pump(evChan <-chan gohook.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PANIC in inputhook pump: %v", r)
		}
		h.closeAll()
	}()

	for ev := range evChan {
		h.mu.Lock()
		targets := make([]*subscriber, 0, len(h.subs))
		for _, s := range h.subs {
			targets = append(targets, s)
		}
		h.mu.Unlock()

		for _, s := range targets {
			select {
			case s.ch <- ev:
			case <-s.done:
			}
		}
	}
	log.Printf("inputhook: event channel closed")
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	h.running = false
	h.closed = true
}
