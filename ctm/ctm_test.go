package ctm

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

func TestDirections(t *testing.T) {
	t.Parallel()
	for d := Up; d <= Left; d++ {
		got, err := DirectionOf(d.Vec())
		if err != nil || got != d {
			t.Fatalf("%v %+v, expected %v", got, err, d)
		}

		f := frame{dir: d}
		if v := f.vec(Up); v != d.Vec() {
			t.Fatalf("%v: frame up %v, expected %v", d, v, d.Vec())
		}
		// The frame right is the move direction turned clockwise, in coordinates where Y grows downwards.
		right := ipeps.Coord{X: -d.Vec().Y, Y: d.Vec().X}
		if v := f.vec(Right); v != right {
			t.Fatalf("%v: frame right %v, expected %v", d, v, right)
		}
		// The frame upper left corner lies between the frame left and the frame up.
		lu := f.vec(Left).Add(f.vec(Up))
		if v := f.corner(LeftUp).Vec(); v != lu {
			t.Fatalf("%v: frame left up %v, expected %v", d, v, lu)
		}
	}
	if _, err := CornerOf(ipeps.Coord{X: 1}); !errors.Is(err, ErrConfig) {
		t.Fatalf("%+v", err)
	}
	if _, err := DirectionOf(ipeps.Coord{X: 1, Y: 1}); !errors.Is(err, ErrConfig) {
		t.Fatalf("%+v", err)
	}
	for _, c := range Corners {
		if got, err := CornerOf(c.Vec()); err != nil || got != c {
			t.Fatalf("%v %+v, expected %v", got, err, c)
		}
		if c.next().Vec().Add(c.prev().Vec()) != c.Vec() {
			t.Fatalf("%v %v %v", c, c.next(), c.prev())
		}
	}
}

func TestDoubleLayer(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(0, 0))
	a := tensor.Rand(rnd, 2, 2, 1, 3, 2)
	dl := DoubleLayer(a)
	if s := dl.Shape(); fmt.Sprint(s) != fmt.Sprint([]int{4, 1, 9, 4}) {
		t.Fatalf("%#v", s)
	}
	for ijk, v := range dl.All() {
		l, lb := ijk[0]/2, ijk[0]%2
		r, rb := ijk[2]/3, ijk[2]%3
		d, db := ijk[3]/2, ijk[3]%2
		var expected float64
		for p := range 2 {
			expected += a.At(p, l, 0, r, d) * a.At(p, lb, 0, rb, db)
		}
		if math.Abs(v-expected) > 1e-12 {
			t.Fatalf("%v %f, expected %f", ijk, v, expected)
		}
	}
}

func TestInitEnv(t *testing.T) {
	t.Parallel()
	l, err := ipeps.NewLattice(2, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	s := ipeps.RandState(rand.New(rand.NewPCG(1, 0)), l, 2, 3)
	tests := []struct {
		init InitType
		c    []int
		t    []int
	}{
		{init: InitTrace, c: []int{1, 1}, t: []int{1, 9, 1}},
		{init: InitRandom, c: []int{5, 5}, t: []int{5, 9, 5}},
	}
	for _, test := range tests {
		t.Run(test.init.String(), func(t *testing.T) {
			t.Parallel()
			env, err := InitEnv(s, 5, test.init, rand.New(rand.NewPCG(2, 0)))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if err := env.CheckShapes(s); err != nil {
				t.Fatalf("%+v", err)
			}
			for _, x := range l.Sites() {
				for _, c := range Corners {
					if sh := env.C(x, c).Shape(); fmt.Sprint(sh) != fmt.Sprint(test.c) {
						t.Fatalf("%v %v %#v, expected %#v", x, c, sh, test.c)
					}
				}
				for d := Up; d <= Left; d++ {
					if sh := env.T(x, d).Shape(); fmt.Sprint(sh) != fmt.Sprint(test.t) {
						t.Fatalf("%v %v %#v, expected %#v", x, d, sh, test.t)
					}
				}
			}
		})
	}

	// Trace edges connect ket and bra legs.
	env, err := InitEnv(s, 5, InitTrace, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	tu := env.T(ipeps.Coord{}, Up)
	for i := range 9 {
		expected := 0.0
		if i/3 == i%3 {
			expected = 1
		}
		if v := tu.At(0, i, 0); v != expected {
			t.Fatalf("%d %f, expected %f", i, v, expected)
		}
	}

	if _, err := InitEnv(s, 0, InitTrace, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("%+v", err)
	}
	if _, err := InitEnv(s, 2, InitRandom, nil); !errors.Is(err, ErrConfig) {
		t.Fatalf("%+v", err)
	}
}

func TestProjectors(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(3, 0))
	r := randSigned(rnd, 12, 10)
	rt := randSigned(rnd, 12, 10)
	p, pt, err := projectors(r, rt, 5, 4, 1e-8)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if s := p.Shape(); fmt.Sprint(s) != fmt.Sprint([]int{3, 4, 5}) {
		t.Fatalf("%#v", s)
	}
	id := tensor.Product(&tensor.Dense{}, p, pt, [][2]int{{0, 0}, {1, 1}})
	for ij, v := range id.All() {
		expected := 0.0
		if ij[0] == ij[1] {
			expected = 1
		}
		if math.Abs(v-expected) > 1e-8 {
			t.Fatalf("%v %f, expected %f", ij, v, expected)
		}
	}

	// Singular values below the relative tolerance are discarded even when chi allows more.
	low := tensor.Zeros(4, 4)
	id4 := tensor.Zeros(4, 4)
	for i, v := range []float64{1, 0.5, 1e-12, 0} {
		low.SetAt([]int{i, i}, v)
		id4.SetAt([]int{i, i}, 1)
	}
	p, _, err = projectors(low, id4, 4, 2, 1e-8)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if s := p.Shape(); fmt.Sprint(s) != fmt.Sprint([]int{2, 2, 2}) {
		t.Fatalf("%#v", s)
	}

	if _, _, err := projectors(tensor.Zeros(4, 4), id4, 4, 2, 1e-8); !errors.Is(err, ErrDegenerate) {
		t.Fatalf("%+v", err)
	}
}

func randSigned(rnd *rand.Rand, shape ...int) *tensor.Dense {
	t := tensor.Rand(rnd, shape...)
	for i, v := range t.Data() {
		t.Data()[i] = 2*v - 1
	}
	return t
}
