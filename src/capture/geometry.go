package capture

import (
	"fmt"
	"image"
)

// Point is a position in virtual-screen pixel coordinates.
type Point struct {
	X int
	Y int
}

// Rectangle is the area spanned by a drag gesture. Start and End are kept in
// the order the pointer produced them until Normalize is called.
type Rectangle struct {
	Start Point
	End   Point
}

// Normalize returns the rectangle with the min corner in Start and the max
// corner in End, whatever direction the drag went.
func (r Rectangle) Normalize() Rectangle {
	return Rectangle{
		Start: Point{X: min(r.Start.X, r.End.X), Y: min(r.Start.Y, r.End.Y)},
		End:   Point{X: max(r.Start.X, r.End.X), Y: max(r.Start.Y, r.End.Y)},
	}
}

// Width of the normalized rectangle.
func (r Rectangle) Width() int {
	n := r.Normalize()
	return n.End.X - n.Start.X
}

// Height of the normalized rectangle.
func (r Rectangle) Height() int {
	n := r.Normalize()
	return n.End.Y - n.Start.Y
}

// Empty reports whether the rectangle covers no pixels.
func (r Rectangle) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}

// Bounds converts the rectangle to an image.Rectangle in screen space.
func (r Rectangle) Bounds() image.Rectangle {
	n := r.Normalize()
	return image.Rect(n.Start.X, n.Start.Y, n.End.X, n.End.Y)
}

func (r Rectangle) String() string {
	n := r.Normalize()
	return fmt.Sprintf("(%d,%d)-(%d,%d) %dx%d", n.Start.X, n.Start.Y, n.End.X, n.End.Y, n.Width(), n.Height())
}
