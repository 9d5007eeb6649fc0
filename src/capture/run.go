package capture

import (
	"context"
	"log"
)

// Source delivers pointer events in the order the device produced them.
// Implementations are platform specific; see inputhook.PointerSource.
type Source interface {
	// Events starts delivery. The channel is closed when the source stops.
	Events(ctx context.Context) (<-chan Event, error)
	// Close stops delivery and releases the underlying input intercept.
	Close() error
}

// Consumer is optionally implemented by sources that can swallow the event
// they most recently delivered.
type Consumer interface {
	Consume(ev Event)
}

// Decision is the caller's verdict on a finished rectangle.
type Decision int

const (
	Accept Decision = iota
	Discard
	Retry
)

// DecideFunc is asked what to do with every finished rectangle.
type DecideFunc func(ctx context.Context, rect Rectangle) (Decision, error)

// AlwaysAccept accepts the first finished rectangle.
func AlwaysAccept(context.Context, Rectangle) (Decision, error) { return Accept, nil }

// RunOptions configures a single gesture.
type RunOptions struct {
	// OnPreview receives every live rectangle while the drag is in progress.
	OnPreview func(Rectangle)
}

// Run drives seq from src until the gesture finishes, is aborted, the source
// closes, or ctx is done. The source is not closed by Run.
func Run(ctx context.Context, seq *Sequencer, events <-chan Event, src Source, opts RunOptions) (Rectangle, error) {
	consumer, _ := src.(Consumer)
	for {
		select {
		case <-ctx.Done():
			return Rectangle{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return Rectangle{}, ErrSourceClosed
			}
			out := seq.Handle(ev)
			if out.Consume && consumer != nil {
				consumer.Consume(ev)
			}
			if out.Preview != nil && opts.OnPreview != nil {
				opts.OnPreview(*out.Preview)
			}
			if out.Done {
				if out.Err != nil {
					return Rectangle{}, out.Err
				}
				return seq.Rectangle(), nil
			}
		}
	}
}

// Select opens src, runs one session and keeps retrying for as long as decide
// says Retry. The session ID is kept across retries. src is closed on return.
func Select(ctx context.Context, src Source, decide DecideFunc, opts RunOptions) (Rectangle, error) {
	if decide == nil {
		decide = AlwaysAccept
	}
	events, err := src.Events(ctx)
	if err != nil {
		return Rectangle{}, err
	}
	defer src.Close()

	seq := NewSequencer()
	for {
		rect, err := Run(ctx, seq, events, src, opts)
		if err != nil {
			return Rectangle{}, err
		}
		decision, err := decide(ctx, rect)
		if err != nil {
			return Rectangle{}, err
		}
		switch decision {
		case Accept:
			return rect, nil
		case Discard:
			log.Printf("capture[%s]: discarded %s", seq.shortID(), rect)
			return Rectangle{}, ErrDiscarded
		default:
			seq.Reset()
		}
	}
}
