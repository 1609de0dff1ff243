package ctm

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// projectorBuilder computes the pair of projectors that truncates the bond between the site x and its left neighbour,
// in the frame of a move.
// The bond is made of the left leg of the edge above x and the left leg of the double layer tensor of x.
type projectorBuilder interface {
	// corners lists the enlarged corners needed by halves.
	corners(f frame, x ipeps.Coord, cc *cornerCache) []cornerKey
	// halves returns the right half r and the left half rt of the network cut at the bond,
	// as matrices whose rows are the bond and whose columns are the legs along which the halves are joined.
	halves(f frame, x ipeps.Coord, cc *cornerCache) (r, rt *tensor.Dense)
}

func newProjectorBuilder(m ProjectorMethod) (projectorBuilder, error) {
	switch m {
	case Projector4x4:
		return fullProjector{}, nil
	case Projector4x2:
		return halfProjector{}, nil
	default:
		return nil, errors.Wrap(ErrConfig, fmt.Sprintf("unknown projector method %d", int(m)))
	}
}

// fullProjector builds projectors from the full 4x4 network around the plaquette left and below of x.
type fullProjector struct{}

func (fullProjector) sites(f frame, x ipeps.Coord) (ru, rd, lu, ld ipeps.Coord) {
	ru = x
	rd = x.Add(f.vec(Down))
	lu = x.Add(f.vec(Left))
	ld = lu.Add(f.vec(Down))
	return ru, rd, lu, ld
}

func (p fullProjector) corners(f frame, x ipeps.Coord, cc *cornerCache) []cornerKey {
	ru, rd, lu, ld := p.sites(f, x)
	return []cornerKey{
		cc.key(f.corner(RightUp), ru),
		cc.key(f.corner(RightDown), rd),
		cc.key(f.corner(LeftUp), lu),
		cc.key(f.corner(LeftDown), ld),
	}
}

func (p fullProjector) halves(f frame, x ipeps.Coord, cc *cornerCache) (*tensor.Dense, *tensor.Dense) {
	ru, rd, lu, ld := p.sites(f, x)
	// In the frame, the enlarged corners are RU[left, down], RD[up, left], LU[down, right], LD[right, up].
	// r is of shape {left of RU, left of RD}.
	r := tensor.Product(&tensor.Dense{}, cc.get(f.corner(RightUp), ru), cc.get(f.corner(RightDown), rd), [][2]int{{1, 0}})
	// rt is of shape {right of LU, right of LD}.
	rt := tensor.Product(&tensor.Dense{}, cc.get(f.corner(LeftUp), lu), cc.get(f.corner(LeftDown), ld), [][2]int{{0, 1}})
	return r, rt
}

// halfProjector builds projectors from the two enlarged corners above the bond only.
type halfProjector struct{}

func (halfProjector) corners(f frame, x ipeps.Coord, cc *cornerCache) []cornerKey {
	return []cornerKey{
		cc.key(f.corner(RightUp), x),
		cc.key(f.corner(LeftUp), x.Add(f.vec(Left))),
	}
}

func (halfProjector) halves(f frame, x ipeps.Coord, cc *cornerCache) (*tensor.Dense, *tensor.Dense) {
	r := cc.get(f.corner(RightUp), x)
	lu := cc.get(f.corner(LeftUp), x.Add(f.vec(Left)))
	rt := tensor.Transpose(&tensor.Dense{}, lu, 1, 0)
	return r, rt
}

// projectors returns the projectors P and Pt of the halves r and rt.
// With rᵀ rt = U S Vᵀ truncated to the rank cut, P = r U S^-1/2 and Pt = rt V S^-1/2, so that Pᵀ Pt is the identity.
// Tensors on the left of the bond are contracted with P, and tensors on its right with Pt,
// which replaces the bond by P Ptᵀ and the network rᵀ rt by its best rank cut approximation.
// The rank cut keeps at most chi singular values, and only those larger than relTol times the largest.
// Both projectors are reshaped to {chi of the edge, d2, cut}, where d2 is the double layer dimension of the bond.
func projectors(r, rt *tensor.Dense, chi, d2 int, relTol float64) (*tensor.Dense, *tensor.Dense, error) {
	// m is of shape {columns of r, columns of rt}.
	m := tensor.Product(&tensor.Dense{}, r, rt, [][2]int{{0, 0}})
	u, s, v, err := tensor.SVD(m)
	if err != nil {
		return nil, nil, errors.Wrap(ErrDegenerate, err.Error())
	}
	if len(s) == 0 || !(s[0] > 0) || math.IsInf(s[0], 0) {
		return nil, nil, errors.Wrap(ErrDegenerate, fmt.Sprintf("singular values %v", s))
	}
	var cut int
	for cut < min(chi, len(s)) && s[cut] > relTol*s[0] {
		cut++
	}

	ut := truncate(u, s, cut)
	vt := truncate(v, s, cut)
	// p is of shape {rows of r, cut}.
	p := tensor.Product(&tensor.Dense{}, r, ut, [][2]int{{1, 0}})
	pt := tensor.Product(&tensor.Dense{}, rt, vt, [][2]int{{1, 0}})
	return p.Reshape(-1, d2, cut), pt.Reshape(-1, d2, cut), nil
}

// truncate returns the first cut columns of u, column j divided by sqrt(s[j]).
func truncate(u *tensor.Dense, s []float64, cut int) *tensor.Dense {
	n := u.Shape()[0]
	t := tensor.Zeros(n, cut)
	for i := range n {
		for j := range cut {
			t.SetAt([]int{i, j}, u.At(i, j)/math.Sqrt(s[j]))
		}
	}
	return t
}
