package ctm

import (
	"fmt"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// DoubleLayer returns the norm tensor a[l, u, r, d] of the site tensor A[p, l, u, r, d],
// obtained by contracting A with its conjugate over the physical index.
// Each leg of a fuses the ket leg x with the bra leg x' into the index x*D + x'.
func DoubleLayer(a *tensor.Dense) *tensor.Dense {
	shape := a.Shape()
	if len(shape) != 5 {
		panic(fmt.Sprintf("%#v", shape))
	}
	// aa is of shape {l, u, r, d, l', u', r', d'}.
	aa := tensor.Product(&tensor.Dense{}, a, a, [][2]int{{ipeps.PhysAxis, ipeps.PhysAxis}})
	// dl is of shape {l, l', u, u', r, r', d, d'}.
	dl := tensor.Transpose(&tensor.Dense{}, aa, 0, 4, 1, 5, 2, 6, 3, 7)
	l, u, r, d := shape[ipeps.LeftAxis], shape[ipeps.UpAxis], shape[ipeps.RightAxis], shape[ipeps.DownAxis]
	return dl.Reshape(l*l, u*u, r*r, d*d)
}

// doubleLayers holds the double layer tensor of every site, together with its views turned by quarter turns.
type doubleLayers struct {
	lattice ipeps.Lattice
	rotated [][4]*tensor.Dense
}

func newDoubleLayers(s *ipeps.State) *doubleLayers {
	dls := &doubleLayers{lattice: s.Lattice, rotated: make([][4]*tensor.Dense, s.Lattice.Len())}
	for i, c := range s.Lattice.Sites() {
		a := DoubleLayer(s.Site(c))
		dls.rotated[i][0] = a
		for k := 1; k < 4; k++ {
			dls.rotated[i][k] = tensor.Transpose(&tensor.Dense{}, a, k%4, (k+1)%4, (k+2)%4, (k+3)%4)
		}
	}
	return dls
}

// site returns the double layer tensor at c turned counterclockwise by k quarter turns,
// so that its left axis is the leg on the side Left.rotate(k).
func (dls *doubleLayers) site(c ipeps.Coord, k int) *tensor.Dense {
	return dls.rotated[dls.lattice.Index(c)][k%4]
}

// dim returns the dimension of the leg of the site c on side s.
func (dls *doubleLayers) dim(c ipeps.Coord, s Direction) int {
	return dls.rotated[dls.lattice.Index(c)][0].Shape()[siteAxis(s)]
}
