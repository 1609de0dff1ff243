package ipeps

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps/tensor"
)

const (
	// PhysAxis is the physical index of a site tensor A[p, l, u, r, d].
	PhysAxis  = 0
	LeftAxis  = 1
	UpAxis    = 2
	RightAxis = 3
	DownAxis  = 4
)

// State is a wavefunction given by one site tensor per inequivalent site of a lattice.
type State struct {
	Lattice Lattice
	sites   []*tensor.Dense
}

// NewState returns the state with the given site tensors.
// Every inequivalent site of l must have a rank 5 tensor, and the auxiliary dimensions of neighbouring sites must agree.
func NewState(l Lattice, sites map[Coord]*tensor.Dense) (*State, error) {
	s := &State{Lattice: l, sites: make([]*tensor.Dense, l.Len())}
	for c, a := range sites {
		if l.Site(c) != c {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("%v is not a site of the unit cell", c))
		}
		if a.Rank() != 5 {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("%v %#v", c, a.Shape()))
		}
		s.sites[l.Index(c)] = a
	}
	for i, c := range l.Sites() {
		if s.sites[i] == nil {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("missing site %v", c))
		}
	}

	for _, c := range l.Sites() {
		a := s.Site(c).Shape()
		right := s.Site(c.Add(Coord{X: 1})).Shape()
		if a[RightAxis] != right[LeftAxis] {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("%v %#v %#v", c, a, right))
		}
		down := s.Site(c.Add(Coord{Y: 1})).Shape()
		if a[DownAxis] != down[UpAxis] {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("%v %#v %#v", c, a, down))
		}
	}
	return s, nil
}

// Site returns the site tensor at the vertex c.
func (s *State) Site(c Coord) *tensor.Dense {
	return s.sites[s.Lattice.Index(c)]
}

// MaxBondDim returns the largest auxiliary dimension over all sites.
func (s *State) MaxBondDim() int {
	var d int
	for _, a := range s.sites {
		shape := a.Shape()
		for _, ax := range []int{LeftAxis, UpAxis, RightAxis, DownAxis} {
			d = max(d, shape[ax])
		}
	}
	return d
}

// RandState returns a state whose site tensors have elements drawn uniformly from [0, 1),
// each site divided by its largest element.
func RandState(rnd *rand.Rand, l Lattice, physDim, bondDim int) *State {
	sites := make(map[Coord]*tensor.Dense, l.Len())
	for _, c := range l.Sites() {
		a := tensor.Rand(rnd, physDim, bondDim, bondDim, bondDim, bondDim)
		sites[c] = a.Scale(1 / a.MaxAbs())
	}
	s, err := NewState(l, sites)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return s
}

// ProductState returns the state with A[p, l, u, r, d] = phys[p] aux[l] aux[u] aux[r] aux[d] on every site.
// Its double layer tensor factorizes over the four legs, so its environment has bond dimension one.
func ProductState(l Lattice, phys, aux []float64) *State {
	sites := make(map[Coord]*tensor.Dense, l.Len())
	for _, c := range l.Sites() {
		d := len(aux)
		a := tensor.Zeros(len(phys), d, d, d, d)
		for ijk := range a.All() {
			v := phys[ijk[PhysAxis]]
			for _, ax := range []int{LeftAxis, UpAxis, RightAxis, DownAxis} {
				v *= aux[ijk[ax]]
			}
			a.SetAt(ijk, v)
		}
		sites[c] = a
	}
	s, err := NewState(l, sites)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return s
}

type jsonSite struct {
	Coord [2]int    `json:"coord"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

type jsonState struct {
	LX    int        `json:"lX"`
	LY    int        `json:"lY"`
	Sites []jsonSite `json:"sites"`
	// Tiling lists (x, y, siteX, siteY) for every vertex of the rectangle when some vertices share a site.
	Tiling [][4]int `json:"tiling,omitempty"`
}

// WriteJSON writes s to w.
func WriteJSON(w io.Writer, s *State) error {
	lx, ly := s.Lattice.Dims()
	js := jsonState{LX: lx, LY: ly}
	for i, c := range s.Lattice.Sites() {
		a := s.sites[i]
		js.Sites = append(js.Sites, jsonSite{Coord: [2]int{c.X, c.Y}, Shape: a.Shape(), Data: a.Data()})
	}
	if s.Lattice.Len() != lx*ly {
		for y := range ly {
			for x := range lx {
				site := s.Lattice.Site(Coord{X: x, Y: y})
				js.Tiling = append(js.Tiling, [4]int{x, y, site.X, site.Y})
			}
		}
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(js); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// ReadJSON reads a state written by WriteJSON.
func ReadJSON(r io.Reader) (*State, error) {
	var js jsonState
	if err := json.NewDecoder(r).Decode(&js); err != nil {
		return nil, errors.Wrap(err, "")
	}

	l, err := NewLattice(js.LX, js.LY)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	if len(js.Tiling) > 0 {
		tiling := make(map[Coord]Coord, len(js.Tiling))
		for _, t := range js.Tiling {
			tiling[Coord{X: t[0], Y: t[1]}] = Coord{X: t[2], Y: t[3]}
		}
		l, err = NewLatticeFunc(js.LX, js.LY, func(c Coord) Coord { return tiling[c] })
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
	}

	sites := make(map[Coord]*tensor.Dense, len(js.Sites))
	for _, site := range js.Sites {
		size := 1
		for _, d := range site.Shape {
			size *= max(d, 0)
		}
		if len(site.Shape) != 5 || size == 0 || len(site.Data) != size {
			return nil, errors.Wrap(ErrShape, fmt.Sprintf("%#v %d", site.Shape, len(site.Data)))
		}
		sites[Coord{X: site.Coord[0], Y: site.Coord[1]}] = tensor.New(site.Data, site.Shape...)
	}
	s, err := NewState(l, sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return s, nil
}
