// Package ipeps describes infinite projected entangled pair states: a finite unit cell of site tensors
// tiled periodically over the square lattice.
package ipeps

import (
	"fmt"
	"slices"

	"github.com/pkg/errors"
)

var (
	// ErrShape is returned when tensors do not have the shapes required by the lattice.
	ErrShape = errors.New("ipeps: bad shape")
)

// Coord is a vertex of the square lattice.
// X grows to the right and Y grows downwards.
type Coord struct {
	X int
	Y int
}

// Add returns c shifted by d.
func (c Coord) Add(d Coord) Coord { return Coord{X: c.X + d.X, Y: c.Y + d.Y} }

// Sub returns c shifted by -d.
func (c Coord) Sub(d Coord) Coord { return Coord{X: c.X - d.X, Y: c.Y - d.Y} }

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// Lattice maps every vertex of the infinite square lattice onto one of the inequivalent sites of a unit cell.
type Lattice struct {
	lx int
	ly int
	// vertexToSite maps a vertex inside the lx by ly rectangle onto its representative site.
	vertexToSite func(Coord) Coord

	sites []Coord
	index map[Coord]int
}

// NewLattice returns the rectangular tiling with an lx by ly unit cell, in which every vertex of the cell is a distinct site.
func NewLattice(lx, ly int) (Lattice, error) {
	return NewLatticeFunc(lx, ly, func(c Coord) Coord { return c })
}

// NewLatticeFunc returns a tiling with period lx along X and ly along Y.
// Within the lx by ly rectangle, vertexToSite picks the representative site of each vertex,
// which allows unit cells such as a two site checkerboard on a 2x2 rectangle.
// Representatives must themselves lie inside the rectangle and be fixed points of vertexToSite.
func NewLatticeFunc(lx, ly int, vertexToSite func(Coord) Coord) (Lattice, error) {
	if lx <= 0 || ly <= 0 {
		return Lattice{}, errors.Errorf("%d %d", lx, ly)
	}
	l := Lattice{lx: lx, ly: ly, vertexToSite: vertexToSite, index: make(map[Coord]int)}
	for y := range ly {
		for x := range lx {
			s := vertexToSite(Coord{X: x, Y: y})
			if s.X < 0 || s.X >= lx || s.Y < 0 || s.Y >= ly {
				return Lattice{}, errors.Errorf("%v -> %v outside %dx%d", Coord{X: x, Y: y}, s, lx, ly)
			}
			if vertexToSite(s) != s {
				return Lattice{}, errors.Errorf("%v is not a representative of itself", s)
			}
			if _, ok := l.index[s]; ok {
				continue
			}
			l.index[s] = len(l.sites)
			l.sites = append(l.sites, s)
		}
	}
	return l, nil
}

// Dims returns the periods of the tiling along X and Y.
func (l Lattice) Dims() (int, int) { return l.lx, l.ly }

// Site returns the representative site of the vertex c.
func (l Lattice) Site(c Coord) Coord {
	x := ((c.X % l.lx) + l.lx) % l.lx
	y := ((c.Y % l.ly) + l.ly) % l.ly
	return l.vertexToSite(Coord{X: x, Y: y})
}

// Index returns the position of the site of c in Sites.
func (l Lattice) Index(c Coord) int {
	return l.index[l.Site(c)]
}

// Sites returns the inequivalent sites in row-major order of first appearance.
func (l Lattice) Sites() []Coord { return l.sites }

// Len returns the number of inequivalent sites.
func (l Lattice) Len() int { return len(l.sites) }

// Equal reports whether l and m tile the plane identically, with the same sites in the same order.
func (l Lattice) Equal(m Lattice) bool {
	if l.lx != m.lx || l.ly != m.ly || !slices.Equal(l.sites, m.sites) {
		return false
	}
	for y := range l.ly {
		for x := range l.lx {
			c := Coord{X: x, Y: y}
			if l.Site(c) != m.Site(c) {
				return false
			}
		}
	}
	return true
}
