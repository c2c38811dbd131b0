package area

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultColor is the fill of a freshly created annotation.
const DefaultColor = "rgba(255, 0, 0, 0.3)"

// ErrSessionClosed is returned when saving a session that was already saved
// or discarded.
var ErrSessionClosed = errors.New("editing session closed")

// AreaSaver persists a step's annotation area. The data store client
// implements it.
type AreaSaver interface {
	SaveArea(ctx context.Context, stepID string, a Area) error
}

// Session is one trainer editing the target area of one step. The rectangle is
// created when the session opens, mutated on every pointer move, persisted on
// Save and dropped on Discard.
type Session struct {
	ID     uuid.UUID
	StepID string

	initial Area
	current Area
	editor  *Editor
	closed  bool
}

// DefaultArea returns a centred 100×100 visible rectangle for an image.
func DefaultArea(dims ImageDimensions) Area {
	nw, nh := naturalSize(dims)
	r := Rect{X: nw/2 - 50, Y: nh/2 - 50, Width: 100, Height: 100}
	return Area{
		Rect:    Clamp(r, dims),
		Color:   DefaultColor,
		Shape:   ShapeRectangle,
		Visible: true,
	}
}

// NewSession opens an editing session. A nil initial area starts from
// DefaultArea.
func NewSession(stepID string, initial *Area, box BoundingBox, dims ImageDimensions) *Session {
	a := DefaultArea(dims)
	if initial != nil {
		a = *initial
		if _, err := ParseShape(string(a.Shape)); err != nil {
			a.Shape = ShapeRectangle
		}
	}

	s := &Session{
		ID:      uuid.New(),
		StepID:  stepID,
		initial: a,
		current: a,
	}
	s.editor = NewEditor(a.Rect, box, dims)
	s.current.Rect = s.editor.Rect()
	s.editor.OnChange = func(r Rect) { s.current.Rect = r }

	log.Debug().
		Str("session", s.ID.String()).
		Str("stepId", stepID).
		Interface("rect", s.current.Rect).
		Msg("Area editing session opened")
	return s
}

// Editor returns the session's rectangle editor.
func (s *Session) Editor() *Editor { return s.editor }

// Area returns the current annotation.
func (s *Session) Area() Area { return s.current }

// SetStyle changes the presentation attributes. Empty color or shape keeps
// the current one; an unknown shape is rejected and nothing changes.
func (s *Session) SetStyle(color string, shape Shape, visible bool) error {
	if shape != "" {
		if _, err := ParseShape(string(shape)); err != nil {
			return err
		}
		s.current.Shape = shape
	}
	if color != "" {
		s.current.Color = color
	}
	s.current.Visible = visible
	return nil
}

// Dirty reports whether the annotation differs from the one the session
// opened with.
func (s *Session) Dirty() bool { return s.current != s.initial }

// Save persists the current annotation and closes the session.
func (s *Session) Save(ctx context.Context, saver AreaSaver) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := saver.SaveArea(ctx, s.StepID, s.current); err != nil {
		return fmt.Errorf("save area for step %s: %w", s.StepID, err)
	}
	s.closed = true
	s.editor.End()

	log.Info().
		Str("session", s.ID.String()).
		Str("stepId", s.StepID).
		Interface("rect", s.current.Rect).
		Msg("Area saved")
	return nil
}

// Discard closes the session without saving and returns the area the step
// still has.
func (s *Session) Discard() Area {
	s.closed = true
	s.editor.End()
	log.Debug().Str("session", s.ID.String()).Bool("dirty", s.Dirty()).Msg("Area editing session discarded")
	return s.initial
}
