package inputhook

import (
	"context"
	"log"
	"sync"

	gohook "github.com/robotn/gohook"

	"screenshotr/src/capture"
)

const (
	leftButton = 1
	// uiohook VC_ESCAPE, identical on every platform.
	escKeycode = 1
	escKeychar = 27
)

// PointerSource adapts the hub's stream to capture.Source.
type PointerSource struct {
	hub *Hub

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewPointerSource(hub *Hub) *PointerSource {
	return &PointerSource{hub: hub}
}

func (p *PointerSource) Events(ctx context.Context) (<-chan capture.Event, error) {
	raw, unsubscribe := p.hub.Subscribe(64)
	if err := p.hub.Start(); err != nil {
		unsubscribe()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	out := make(chan capture.Event, 64)
	go func() {
		defer close(out)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-raw:
				if !ok {
					return
				}
				ce, ok := translate(ev)
				if !ok {
					continue
				}
				select {
				case out <- ce:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (p *PointerSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	return nil
}

// Consume is called for presses that start a selection. gohook only observes
// input, so the press still reaches the window underneath.
func (p *PointerSource) Consume(ev capture.Event) {
	log.Printf("inputhook: %s at %d,%d observed but not swallowed", ev.Kind, ev.Position.X, ev.Position.Y)
}

// translate maps a raw hook event to a sequencer event. The bool is false for
// events the sequencer must never see: synthesized clicks, hook lifecycle
// notifications and key traffic other than Escape (the hotkey release arrives
// right after a capture starts).
func translate(ev gohook.Event) (capture.Event, bool) {
	pos := capture.Point{X: int(ev.X), Y: int(ev.Y)}
	switch ev.Kind {
	case gohook.MouseMove, gohook.MouseDrag:
		return capture.Event{Kind: capture.Move, Position: pos}, true
	case gohook.MouseHold: // uiohook "pressed"
		if ev.Button == leftButton {
			return capture.Event{Kind: capture.ButtonDown, Position: pos}, true
		}
		return capture.Event{Kind: capture.Other, Position: pos}, true
	case gohook.MouseDown: // uiohook "released"
		if ev.Button == leftButton {
			return capture.Event{Kind: capture.ButtonUp, Position: pos}, true
		}
		return capture.Event{Kind: capture.Other, Position: pos}, true
	case gohook.MouseWheel:
		return capture.Event{Kind: capture.Other, Position: pos}, true
	case gohook.KeyHold:
		if ev.Keycode == escKeycode {
			return capture.Event{Kind: capture.Other}, true
		}
	case gohook.KeyDown:
		if ev.Keychar == escKeychar {
			return capture.Event{Kind: capture.Other}, true
		}
	}
	return capture.Event{}, false
}
