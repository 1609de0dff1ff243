package ctm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// Env is the CTMRG environment of a state: four corner tensors and four edge tensors around every inequivalent site.
//
// The legs of environment tensors go clockwise around the site, see the axis constants of this package.
// In particular the corners are C_LU[down, right], C_RU[left, down], C_RD[up, left], C_LD[right, up],
// and the edges are T_U[left, down, right], T_R[up, left, down], T_D[right, up, left], T_L[down, right, up],
// where the middle leg of an edge has the dimension of the double layer leg it connects to.
//
// Tensors returned by an Env must not be modified.
// During a move, new tensors are written to a second generation which replaces the current one when the move completes.
type Env struct {
	// Chi is the environment bond dimension.
	Chi int

	lattice ipeps.Lattice
	gens    [2]generation
	cur     int
}

type generation struct {
	c [][4]*tensor.Dense
	t [][4]*tensor.Dense
}

func newGeneration(n int) generation {
	return generation{c: make([][4]*tensor.Dense, n), t: make([][4]*tensor.Dense, n)}
}

// NewEnv returns an empty environment, to be filled with SetC and SetT.
func NewEnv(l ipeps.Lattice, chi int) (*Env, error) {
	if chi <= 0 {
		return nil, errors.Wrap(ErrConfig, fmt.Sprintf("chi %d", chi))
	}
	e := &Env{Chi: chi, lattice: l}
	e.gens[0] = newGeneration(l.Len())
	e.gens[1] = newGeneration(l.Len())
	return e, nil
}

// Lattice returns the lattice of e.
func (e *Env) Lattice() ipeps.Lattice { return e.lattice }

// C returns the corner tensor at corner of the site c.
func (e *Env) C(c ipeps.Coord, corner Corner) *tensor.Dense {
	return e.gens[e.cur].c[e.lattice.Index(c)][corner]
}

// T returns the edge tensor on side s of the site c.
func (e *Env) T(c ipeps.Coord, s Direction) *tensor.Dense {
	return e.gens[e.cur].t[e.lattice.Index(c)][s]
}

// SetC sets the corner tensor at corner of the site c.
func (e *Env) SetC(c ipeps.Coord, corner Corner, t *tensor.Dense) {
	e.gens[e.cur].c[e.lattice.Index(c)][corner] = t
}

// SetT sets the edge tensor on side s of the site c.
func (e *Env) SetT(c ipeps.Coord, s Direction, t *tensor.Dense) {
	e.gens[e.cur].t[e.lattice.Index(c)][s] = t
}

// Clone returns a copy of e that shares no storage with it.
func (e *Env) Clone() *Env {
	n := e.lattice.Len()
	cl := &Env{Chi: e.Chi, lattice: e.lattice}
	cl.gens[0] = newGeneration(n)
	cl.gens[1] = newGeneration(n)
	g := e.gens[e.cur]
	for i := range n {
		for k := range 4 {
			if g.c[i][k] != nil {
				cl.gens[0].c[i][k] = g.c[i][k].Clone()
			}
			if g.t[i][k] != nil {
				cl.gens[0].t[i][k] = g.t[i][k].Clone()
			}
		}
	}
	return cl
}

// next starts a move, returning the generation that the move writes to.
// It initially holds the tensors of the current generation, so that tensors untouched by the move carry over.
func (e *Env) next() *generation {
	cur, nxt := &e.gens[e.cur], &e.gens[1-e.cur]
	copy(nxt.c, cur.c)
	copy(nxt.t, cur.t)
	return nxt
}

// commit makes the generation returned by next current.
func (e *Env) commit() { e.cur = 1 - e.cur }

// CheckShapes checks that e is complete and that its tensors fit together and with the double layer tensors of s.
func (e *Env) CheckShapes(s *ipeps.State) error {
	if !s.Lattice.Equal(e.lattice) {
		lx, ly := s.Lattice.Dims()
		elx, ely := e.lattice.Dims()
		return errors.Wrap(ipeps.ErrShape, fmt.Sprintf("state lattice %dx%d %v env lattice %dx%d %v", lx, ly, s.Lattice.Sites(), elx, ely, e.lattice.Sites()))
	}
	for _, x := range e.lattice.Sites() {
		a := s.Site(x).Shape()
		for _, corner := range Corners {
			c := e.C(x, corner)
			if c == nil || c.Rank() != 2 {
				return errors.Wrap(ipeps.ErrShape, fmt.Sprintf("corner %v of %v", corner, x))
			}
		}
		for side := Up; side <= Left; side++ {
			t := e.T(x, side)
			if t == nil || t.Rank() != 3 {
				return errors.Wrap(ipeps.ErrShape, fmt.Sprintf("edge %v of %v", side, x))
			}
			ts := t.Shape()
			d := a[1+siteAxis(side)]
			if ts[tInAxis] != d*d {
				return errors.Wrap(ipeps.ErrShape, fmt.Sprintf("edge %v of %v %#v site %#v", side, x, ts, a))
			}
			// The corner preceding an edge is the corner with the same index, and the one following it is the next corner.
			prev, next := e.C(x, Corner(side)).Shape(), e.C(x, Corner(side).rotate(1)).Shape()
			if prev[cSecondAxis] != ts[tFirstAxis] || ts[tLastAxis] != next[cFirstAxis] {
				return errors.Wrap(ipeps.ErrShape, fmt.Sprintf("edge %v of %v %#v corners %#v %#v", side, x, ts, prev, next))
			}
		}
	}
	return nil
}

// MaxAbs returns the largest absolute element over all tensors of e, skipping unset ones.
func (e *Env) MaxAbs() float64 {
	var m float64
	g := e.gens[e.cur]
	for i := range g.c {
		for k := range 4 {
			for _, t := range []*tensor.Dense{g.c[i][k], g.t[i][k]} {
				if t != nil {
					m = max(m, t.MaxAbs())
				}
			}
		}
	}
	return m
}
