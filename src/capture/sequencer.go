package capture

import (
	"errors"
	"log"

	"github.com/google/uuid"
)

var (
	// ErrInputAborted is returned when pointer input other than a move or a
	// left button press/release arrives while a session is active.
	ErrInputAborted = errors.New("capture aborted by unexpected input")

	// ErrDiscarded is returned when the caller rejects a finished rectangle.
	ErrDiscarded = errors.New("capture discarded")

	// ErrSourceClosed is returned when the pointer source stops delivering
	// events before the gesture finished.
	ErrSourceClosed = errors.New("pointer source closed")
)

// State of a capture session.
type State int

const (
	AwaitingStart State = iota
	AwaitingEnd
	Finished
	Aborted
)

func (s State) String() string {
	switch s {
	case AwaitingStart:
		return "awaiting-start"
	case AwaitingEnd:
		return "awaiting-end"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// EventKind classifies pointer input. Everything that is not a move or a
// left button transition is Other.
type EventKind int

const (
	Move EventKind = iota
	ButtonDown
	ButtonUp
	Other
)

func (k EventKind) String() string {
	switch k {
	case Move:
		return "move"
	case ButtonDown:
		return "button-down"
	case ButtonUp:
		return "button-up"
	default:
		return "other"
	}
}

// Event is one pointer input in screen coordinates.
type Event struct {
	Kind     EventKind
	Position Point
}

// Outcome tells the input source what to do with the event it just fed in.
type Outcome struct {
	// Consume asks the source to swallow the event so the window under the
	// pointer never sees it. Set for the press that starts a drag.
	Consume bool
	// Preview is the live normalized rectangle while the drag is in progress.
	Preview *Rectangle
	// Done is set once the session reached Finished or Aborted.
	Done bool
	// Err is ErrInputAborted when the session was aborted.
	Err error
}

// Sequencer turns a stream of pointer events into a rectangle. It is not safe
// for concurrent use; events must be fed from a single goroutine in the order
// the input device produced them.
type Sequencer struct {
	id       string
	state    State
	rect     Rectangle
	hasStart bool
}

// NewSequencer starts a session in AwaitingStart.
func NewSequencer() *Sequencer {
	return &Sequencer{id: uuid.NewString(), state: AwaitingStart}
}

// ID identifies the session. It survives Reset.
func (s *Sequencer) ID() string { return s.id }

// shortID is the log prefix for the session; a zero Sequencer has none.
func (s *Sequencer) shortID() string {
	if len(s.id) < 8 {
		if s.id == "" {
			return "-"
		}
		return s.id
	}
	return s.id[:8]
}

// State returns the current state.
func (s *Sequencer) State() State { return s.state }

// Rectangle returns the normalized rectangle built so far.
func (s *Sequencer) Rectangle() Rectangle { return s.rect.Normalize() }

// Reset re-enters AwaitingStart for a retry, clearing both corners.
func (s *Sequencer) Reset() {
	s.state = AwaitingStart
	s.rect = Rectangle{}
	s.hasStart = false
	log.Printf("capture[%s]: reset for retry", s.shortID())
}

// Handle feeds one event into the state machine.
func (s *Sequencer) Handle(ev Event) Outcome {
	switch s.state {
	case Finished, Aborted:
		return Outcome{Done: true, Err: s.err()}
	}

	if ev.Kind != Move && ev.Kind != ButtonDown && ev.Kind != ButtonUp {
		s.state = Aborted
		log.Printf("capture[%s]: aborted by %s input at (%d,%d)", s.shortID(), ev.Kind, ev.Position.X, ev.Position.Y)
		return Outcome{Done: true, Err: ErrInputAborted}
	}

	switch s.state {
	case AwaitingStart:
		switch ev.Kind {
		case Move:
			s.rect.Start = ev.Position
			s.hasStart = true
		case ButtonDown:
			// The last move before the press is the effective start.
			if !s.hasStart {
				s.rect.Start = ev.Position
				s.hasStart = true
			}
			s.rect.End = s.rect.Start
			s.state = AwaitingEnd
			zero := Rectangle{Start: s.rect.Start, End: s.rect.Start}
			return Outcome{Consume: true, Preview: &zero}
		}
		// A release before any press is stray input from the gesture that
		// opened the session; ignore it.
		return Outcome{}

	case AwaitingEnd:
		switch ev.Kind {
		case Move:
			s.rect.End = ev.Position
			preview := s.rect.Normalize()
			return Outcome{Preview: &preview}
		case ButtonUp:
			s.rect.End = ev.Position
			s.state = Finished
			final := s.rect.Normalize()
			log.Printf("capture[%s]: finished %s", s.shortID(), final)
			return Outcome{Preview: &final, Done: true}
		case ButtonDown:
			// Second press without a release, keep the original start.
			return Outcome{Consume: true}
		}
	}
	return Outcome{}
}

func (s *Sequencer) err() error {
	if s.state == Aborted {
		return ErrInputAborted
	}
	return nil
}
