package capture

import (
	"context"
	"errors"
	"testing"
)

func feed(s *Sequencer, events ...Event) Outcome {
	var out Outcome
	for _, ev := range events {
		out = s.Handle(ev)
	}
	return out
}

func mv(x, y int) Event   { return Event{Kind: Move, Position: Point{X: x, Y: y}} }
func down(x, y int) Event { return Event{Kind: ButtonDown, Position: Point{X: x, Y: y}} }
func up(x, y int) Event   { return Event{Kind: ButtonUp, Position: Point{X: x, Y: y}} }

func TestSequencerNormalizesAnyDragDirection(t *testing.T) {
	tests := []struct {
		name   string
		events []Event
		want   Rectangle
	}{
		{
			name:   "top-left to bottom-right",
			events: []Event{mv(10, 10), down(10, 10), mv(50, 60), up(100, 100)},
			want:   Rectangle{Start: Point{10, 10}, End: Point{100, 100}},
		},
		{
			name:   "bottom-right to top-left",
			events: []Event{mv(100, 100), down(100, 100), mv(40, 40), up(10, 10)},
			want:   Rectangle{Start: Point{10, 10}, End: Point{100, 100}},
		},
		{
			name:   "bottom-left to top-right",
			events: []Event{mv(5, 90), down(5, 90), up(80, 20)},
			want:   Rectangle{Start: Point{5, 20}, End: Point{80, 90}},
		},
		{
			name:   "press without prior move",
			events: []Event{down(30, 40), up(10, 70)},
			want:   Rectangle{Start: Point{10, 40}, End: Point{30, 70}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSequencer()
			out := feed(s, tt.events...)
			if !out.Done || out.Err != nil {
				t.Fatalf("expected finished outcome, got %+v", out)
			}
			if s.State() != Finished {
				t.Fatalf("expected Finished, got %s", s.State())
			}
			got := s.Rectangle()
			if got != tt.want {
				t.Errorf("rectangle = %v, want %v", got, tt.want)
			}
			if got.Start.X > got.End.X || got.Start.Y > got.End.Y {
				t.Errorf("rectangle not normalized: %+v", got)
			}
		})
	}
}

func TestSequencerLastMoveIsEffectiveStart(t *testing.T) {
	s := NewSequencer()
	feed(s, mv(1, 1), mv(2, 2), mv(7, 9))
	out := s.Handle(down(8, 8))
	if !out.Consume {
		t.Fatal("expected the starting press to be consumed")
	}
	if out.Preview == nil || !out.Preview.Empty() {
		t.Fatalf("expected zero-size preview on press, got %+v", out.Preview)
	}
	if got := s.Rectangle().Start; got != (Point{7, 9}) {
		t.Fatalf("start = %+v, want last move position", got)
	}
}

func TestSequencerPreviewTracksDrag(t *testing.T) {
	s := NewSequencer()
	feed(s, down(50, 50))
	out := s.Handle(mv(20, 80))
	if out.Preview == nil {
		t.Fatal("expected preview while dragging")
	}
	want := Rectangle{Start: Point{20, 50}, End: Point{50, 80}}
	if *out.Preview != want {
		t.Errorf("preview = %v, want %v", *out.Preview, want)
	}
	if out.Done {
		t.Error("drag must not finish the session")
	}
}

func TestSequencerZeroLengthDragIsEmpty(t *testing.T) {
	s := NewSequencer()
	out := feed(s, down(15, 15), up(15, 15))
	if !out.Done || out.Err != nil {
		t.Fatalf("expected finished outcome, got %+v", out)
	}
	if !s.Rectangle().Empty() {
		t.Fatalf("expected empty rectangle, got %v", s.Rectangle())
	}
}

func TestSequencerAbortsOnOtherInput(t *testing.T) {
	for _, state := range []string{"awaiting start", "awaiting end"} {
		t.Run(state, func(t *testing.T) {
			s := NewSequencer()
			if state == "awaiting end" {
				feed(s, down(1, 1), mv(5, 5))
			}
			out := s.Handle(Event{Kind: Other})
			if !out.Done || !errors.Is(out.Err, ErrInputAborted) {
				t.Fatalf("expected abort, got %+v", out)
			}
			if s.State() != Aborted {
				t.Fatalf("expected Aborted, got %s", s.State())
			}
			// Later input is ignored.
			if out := s.Handle(up(9, 9)); !errors.Is(out.Err, ErrInputAborted) {
				t.Fatalf("expected aborted session to stay aborted, got %+v", out)
			}
		})
	}
}

func TestSequencerIgnoresStrayRelease(t *testing.T) {
	s := NewSequencer()
	out := s.Handle(up(3, 3))
	if out.Done {
		t.Fatal("release before press must not finish the session")
	}
	if s.State() != AwaitingStart {
		t.Fatalf("expected AwaitingStart, got %s", s.State())
	}
}

func TestZeroSequencerIsUsable(t *testing.T) {
	var s Sequencer
	out := feed(&s, down(2, 2), up(6, 8))
	if !out.Done || out.Err != nil {
		t.Fatalf("expected finished outcome, got %+v", out)
	}
	if got := s.Rectangle(); got != (Rectangle{Start: Point{X: 2, Y: 2}, End: Point{X: 6, Y: 8}}) {
		t.Fatalf("unexpected rectangle %v", got)
	}

	s.Reset()
	if out := s.Handle(Event{Kind: Other}); !errors.Is(out.Err, ErrInputAborted) {
		t.Fatalf("expected abort, got %+v", out)
	}
	if s.shortID() != "-" {
		t.Fatalf("expected placeholder log id, got %q", s.shortID())
	}
}

func TestSequencerResetKeepsSessionID(t *testing.T) {
	s := NewSequencer()
	id := s.ID()
	feed(s, down(1, 1), up(10, 10))
	s.Reset()
	if s.ID() != id {
		t.Fatal("session ID changed across retry")
	}
	if s.State() != AwaitingStart {
		t.Fatalf("expected AwaitingStart after reset, got %s", s.State())
	}
	if s.Rectangle() != (Rectangle{}) {
		t.Fatalf("expected cleared rectangle, got %v", s.Rectangle())
	}
}

type chanSource struct {
	ch       chan Event
	consumed []Event
	closed   bool
}

func newChanSource(events ...Event) *chanSource {
	ch := make(chan Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	return &chanSource{ch: ch}
}

func (c *chanSource) Events(context.Context) (<-chan Event, error) { return c.ch, nil }
func (c *chanSource) Close() error                                  { c.closed = true; return nil }
func (c *chanSource) Consume(ev Event)                              { c.consumed = append(c.consumed, ev) }

func TestSelectAcceptsFirstRectangle(t *testing.T) {
	src := newChanSource(mv(100, 100), down(100, 100), mv(50, 50), up(10, 10))
	var previews int
	rect, err := Select(context.Background(), src, nil, RunOptions{OnPreview: func(Rectangle) { previews++ }})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if want := (Rectangle{Start: Point{10, 10}, End: Point{100, 100}}); rect != want {
		t.Errorf("rect = %v, want %v", rect, want)
	}
	if len(src.consumed) != 1 || src.consumed[0].Kind != ButtonDown {
		t.Errorf("expected only the press to be consumed, got %+v", src.consumed)
	}
	if previews != 3 {
		t.Errorf("previews = %d, want 3", previews)
	}
	if !src.closed {
		t.Error("expected source to be closed")
	}
}

func TestSelectRetriesUntilAccepted(t *testing.T) {
	src := newChanSource(
		down(0, 0), up(5, 5),
		down(20, 20), up(40, 30),
	)
	calls := 0
	decide := func(ctx context.Context, r Rectangle) (Decision, error) {
		calls++
		if calls == 1 {
			return Retry, nil
		}
		return Accept, nil
	}
	rect, err := Select(context.Background(), src, decide, RunOptions{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if want := (Rectangle{Start: Point{20, 20}, End: Point{40, 30}}); rect != want {
		t.Errorf("rect = %v, want %v", rect, want)
	}
	if calls != 2 {
		t.Errorf("decide called %d times, want 2", calls)
	}
}

func TestSelectDiscard(t *testing.T) {
	src := newChanSource(down(0, 0), up(5, 5))
	_, err := Select(context.Background(), src, func(context.Context, Rectangle) (Decision, error) {
		return Discard, nil
	}, RunOptions{})
	if !errors.Is(err, ErrDiscarded) {
		t.Fatalf("expected ErrDiscarded, got %v", err)
	}
}

func TestSelectAbortPerformsNoDecision(t *testing.T) {
	src := newChanSource(mv(1, 1), down(1, 1), Event{Kind: Other}, up(9, 9))
	_, err := Select(context.Background(), src, func(context.Context, Rectangle) (Decision, error) {
		t.Fatal("decide must not run for an aborted session")
		return Accept, nil
	}, RunOptions{})
	if !errors.Is(err, ErrInputAborted) {
		t.Fatalf("expected ErrInputAborted, got %v", err)
	}
}

func TestSelectSourceClosed(t *testing.T) {
	src := newChanSource(down(1, 1))
	close(src.ch)
	_, err := Select(context.Background(), src, nil, RunOptions{})
	if !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}

func TestSelectContextCancelled(t *testing.T) {
	src := &chanSource{ch: make(chan Event)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Select(ctx, src, nil, RunOptions{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
