package ctm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
)

// Direction is a side of a site, enumerated clockwise starting from Up.
// A move in a direction grows the boundary on that side by one row or column.
type Direction int

const (
	Up Direction = iota
	Right
	Down
	Left
)

var directionVecs = [4]ipeps.Coord{{X: 0, Y: -1}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}}

// DefaultMoveSequence is the order of moves within a sweep.
var DefaultMoveSequence = []Direction{Up, Left, Down, Right}

// DirectionOf returns the direction of the unit vector v.
func DirectionOf(v ipeps.Coord) (Direction, error) {
	for d, dv := range directionVecs {
		if dv == v {
			return Direction(d), nil
		}
	}
	return -1, errors.Wrap(ErrConfig, fmt.Sprintf("unknown direction %v", v))
}

// ParseDirection parses "up", "right", "down" or "left".
func ParseDirection(s string) (Direction, error) {
	for d := Up; d <= Left; d++ {
		if strings.EqualFold(s, d.String()) {
			return d, nil
		}
	}
	return -1, errors.Wrap(ErrConfig, fmt.Sprintf("unknown direction %q", s))
}

// Vec returns the unit vector pointing towards d.
func (d Direction) Vec() ipeps.Coord { return directionVecs[d] }

func (d Direction) valid() bool { return d >= Up && d <= Left }

// rotate returns d turned clockwise by k quarter turns.
func (d Direction) rotate(k int) Direction { return Direction((int(d) + k) % 4) }

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Right:
		return "right"
	case Down:
		return "down"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Corner is a corner of a site, enumerated clockwise starting from the upper left.
type Corner int

const (
	LeftUp Corner = iota
	RightUp
	RightDown
	LeftDown
)

var cornerVecs = [4]ipeps.Coord{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}

// Corners lists all corners in clockwise order.
var Corners = []Corner{LeftUp, RightUp, RightDown, LeftDown}

// CornerOf returns the corner in the diagonal direction v.
func CornerOf(v ipeps.Coord) (Corner, error) {
	for c, cv := range cornerVecs {
		if cv == v {
			return Corner(c), nil
		}
	}
	return -1, errors.Wrap(ErrConfig, fmt.Sprintf("unknown corner %v", v))
}

// Vec returns the diagonal vector pointing towards c.
func (c Corner) Vec() ipeps.Coord { return cornerVecs[c] }

func (c Corner) rotate(k int) Corner { return Corner((int(c) + k) % 4) }

// next is the side that follows c clockwise, prev the side that precedes it.
func (c Corner) next() Direction { return Direction(c) }
func (c Corner) prev() Direction { return Direction((int(c) + 3) % 4) }

func (c Corner) String() string {
	switch c {
	case LeftUp:
		return "left-up"
	case RightUp:
		return "right-up"
	case RightDown:
		return "right-down"
	case LeftDown:
		return "left-down"
	default:
		return fmt.Sprintf("Corner(%d)", int(c))
	}
}

// frame views the lattice turned so that the move direction points up.
// Sides and corners named in the frame are mapped to the lattice by rotating them clockwise by the move direction.
type frame struct {
	dir Direction
}

func (f frame) side(s Direction) Direction { return s.rotate(int(f.dir)) }
func (f frame) corner(c Corner) Corner     { return c.rotate(int(f.dir)) }

// vec returns the lattice vector of the frame side s.
func (f frame) vec(s Direction) ipeps.Coord { return f.side(s).Vec() }

// Axes of environment tensors.
// Legs are listed clockwise around the site: a corner has the leg shared with the preceding edge first,
// and an edge has its leg towards the preceding corner first, then the leg into the site, then the leg towards the next corner.
// For example the upper left corner is C[down, right] and the upper edge is T[left, down, right].
const (
	cFirstAxis  = 0
	cSecondAxis = 1

	tFirstAxis = 0
	tInAxis    = 1
	tLastAxis  = 2
)

// Axes of double layer tensors a[l, u, r, d].
const (
	aLeftAxis  = 0
	aUpAxis    = 1
	aRightAxis = 2
	aDownAxis  = 3
)

// siteAxis returns the axis of a double layer tensor pointing towards s.
func siteAxis(s Direction) int { return (int(s) + 1) % 4 }
