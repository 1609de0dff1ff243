package tensor

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"testing"
)

func TestProduct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a    *Dense
		b    *Dense
		axes [][2]int
		c    *Dense
	}{
		{
			a:    New([]float64{1, 2, 3, 4, 5, 6}, 2, 3),
			b:    New([]float64{1, 0, 0, 1, 1, 1}, 3, 2),
			axes: [][2]int{{1, 0}},
			c:    New([]float64{4, 5, 10, 11}, 2, 2),
		},
		// Contract the first axis of a, so that the free axis of a comes from its second axis.
		{
			a:    New([]float64{1, 2, 3, 4, 5, 6}, 2, 3),
			b:    New([]float64{1, -1}, 2),
			axes: [][2]int{{0, 0}},
			c:    New([]float64{-3, -3, -3}, 3),
		},
		// Full contraction into a scalar.
		{
			a:    New([]float64{1, 2, 3, 4}, 2, 2),
			b:    New([]float64{1, 2, 3, 4}, 2, 2),
			axes: [][2]int{{0, 0}, {1, 1}},
			c:    New([]float64{30}),
		},
		// Outer product.
		{
			a:    New([]float64{1, 2}, 2),
			b:    New([]float64{3, 4, 5}, 3),
			axes: nil,
			c:    New([]float64{3, 4, 5, 6, 8, 10}, 2, 3),
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v %v", test.a, test.b, test.axes), func(t *testing.T) {
			t.Parallel()
			c := Product(Zeros(1), test.a, test.b, test.axes)
			if !AllClose(c, test.c, 1e-12) {
				t.Fatalf("%v, expected %v", c, test.c)
			}
		})
	}
}

func TestProductRandom(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(1, 2))
	a := Rand(rnd, 2, 3, 4)
	b := Rand(rnd, 4, 5, 2)

	// c[j, k] = sum_{i, l} a[i, j, l] b[l, k, i]
	c := Product(Zeros(1), a, b, [][2]int{{2, 0}, {0, 2}})
	if !slices.Equal(c.Shape(), []int{3, 5}) {
		t.Fatalf("%#v", c.Shape())
	}
	for j := range 3 {
		for k := range 5 {
			var want float64
			for i := range 2 {
				for l := range 4 {
					want += a.At(i, j, l) * b.At(l, k, i)
				}
			}
			if got := c.At(j, k); math.Abs(got-want) > 1e-12 {
				t.Fatalf("%d %d %f, expected %f", j, k, got, want)
			}
		}
	}
}

func TestTranspose(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(3, 4))
	a := Rand(rnd, 2, 3, 4)
	c := Transpose(Zeros(1), a, 2, 0, 1)
	if !slices.Equal(c.Shape(), []int{4, 2, 3}) {
		t.Fatalf("%#v", c.Shape())
	}
	for ijk, v := range a.All() {
		if got := c.At(ijk[2], ijk[0], ijk[1]); got != v {
			t.Fatalf("%#v %f, expected %f", ijk, got, v)
		}
	}

	// Transposing back restores the original.
	back := Transpose(Zeros(1), c, 1, 2, 0)
	if !AllClose(back, a, 0) {
		t.Fatalf("%v, expected %v", back, a)
	}
}

func TestReshape(t *testing.T) {
	t.Parallel()
	a := New([]float64{0, 1, 2, 3, 4, 5}, 2, 3)
	b := a.Reshape(3, -1)
	if !slices.Equal(b.Shape(), []int{3, 2}) {
		t.Fatalf("%#v", b.Shape())
	}
	if b.At(2, 1) != 5 {
		t.Fatalf("%f", b.At(2, 1))
	}

	// Views share storage.
	b.SetAt([]int{0, 0}, -1)
	if a.At(0, 0) != -1 {
		t.Fatalf("%v", a)
	}
}

func TestSVD(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewPCG(5, 6))
	a := Rand(rnd, 5, 3)
	u, s, v, err := SVD(a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !slices.IsSortedFunc(s, func(x, y float64) int { return -cmpFloat(x, y) }) {
		t.Fatalf("%#v", s)
	}

	// Reconstruct a = u diag(s) vᵀ.
	us := u.Clone()
	for ijk, x := range u.All() {
		us.SetAt(ijk, x*s[ijk[1]])
	}
	b := Product(Zeros(1), us, v, [][2]int{{1, 1}})
	if !AllClose(a, b, 1e-12) {
		t.Fatalf("%v, expected %v", b, a)
	}

	vals, err := SingularValues(a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !AllClose(New(vals, len(vals)), New(s, len(s)), 1e-12) {
		t.Fatalf("%#v, expected %#v", vals, s)
	}
}

func TestSVDNonFinite(t *testing.T) {
	t.Parallel()
	a := New([]float64{1, math.NaN(), 0, 1}, 2, 2)
	if _, _, _, err := SVD(a); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMaxAbs(t *testing.T) {
	t.Parallel()
	a := New([]float64{0.5, -3, 2}, 3)
	if m := a.MaxAbs(); m != 3 {
		t.Fatalf("%f", m)
	}
	a.Scale(1 / a.MaxAbs())
	if m := a.MaxAbs(); m != 1 {
		t.Fatalf("%f", m)
	}
}

func cmpFloat(x, y float64) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}
