// Package tensor implements dense real tensors and the contractions used by tensor network algorithms.
//
// Tensors are stored row-major. Functions that produce a tensor take the destination as their first argument,
// so that callers can reuse buffers across iterations; the destination must not share storage with the inputs.
package tensor

import (
	"fmt"
	"iter"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Dense is a dense tensor of float64.
type Dense struct {
	shape []int
	data  []float64
}

// Zeros returns a tensor of the given shape filled with zeros.
// A tensor without dimensions is a scalar.
func Zeros(shape ...int) *Dense {
	t := &Dense{}
	return t.Reset(shape...)
}

// New returns a tensor backed by data.
func New(data []float64, shape ...int) *Dense {
	if len(data) != size(shape) {
		panic(fmt.Sprintf("%d %#v", len(data), shape))
	}
	return &Dense{shape: slices.Clone(shape), data: data}
}

// Rand returns a tensor with elements drawn uniformly from [0, 1).
func Rand(rnd *rand.Rand, shape ...int) *Dense {
	t := Zeros(shape...)
	for i := range t.data {
		t.data[i] = rnd.Float64()
	}
	return t
}

// Reset sets the shape of t and fills it with zeros, reusing the underlying storage if it is large enough.
// Views obtained from Reshape share that storage and are invalidated.
func (t *Dense) Reset(shape ...int) *Dense {
	n := size(shape)
	t.shape = append(t.shape[:0], shape...)
	if cap(t.data) < n {
		t.data = make([]float64, n)
	} else {
		t.data = t.data[:n]
		clear(t.data)
	}
	return t
}

// Shape returns the dimensions of t.
func (t *Dense) Shape() []int { return slices.Clone(t.shape) }

// Rank returns the number of dimensions.
func (t *Dense) Rank() int { return len(t.shape) }

// Size returns the number of elements.
func (t *Dense) Size() int { return len(t.data) }

// Data returns the row-major backing slice of t.
func (t *Dense) Data() []float64 { return t.data }

// Reshape returns a view of t with a different shape.
// At most one dimension may be -1, in which case it is inferred.
func (t *Dense) Reshape(shape ...int) *Dense {
	shape = slices.Clone(shape)
	inferred := -1
	known := 1
	for i, d := range shape {
		switch {
		case d == -1 && inferred == -1:
			inferred = i
		case d <= 0:
			panic(fmt.Sprintf("%#v %#v", t.shape, shape))
		default:
			known *= d
		}
	}
	if inferred >= 0 {
		shape[inferred] = len(t.data) / known
	}
	if size(shape) != len(t.data) {
		panic(fmt.Sprintf("%#v %#v", t.shape, shape))
	}
	return &Dense{shape: shape, data: t.data}
}

// At returns the element at ijk.
func (t *Dense) At(ijk ...int) float64 {
	return t.data[t.offset(ijk)]
}

// SetAt sets the element at ijk.
func (t *Dense) SetAt(ijk []int, v float64) {
	t.data[t.offset(ijk)] = v
}

// All iterates over the elements of t in row-major order.
// The yielded index slice is reused between iterations.
func (t *Dense) All() iter.Seq2[[]int, float64] {
	return func(yield func([]int, float64) bool) {
		ijk := make([]int, len(t.shape))
		for _, v := range t.data {
			if !yield(ijk, v) {
				return
			}
			for i := len(ijk) - 1; i >= 0; i-- {
				ijk[i]++
				if ijk[i] < t.shape[i] {
					break
				}
				ijk[i] = 0
			}
		}
	}
}

// MaxAbs returns the largest absolute value of the elements of t.
func (t *Dense) MaxAbs() float64 {
	return floats.Norm(t.data, math.Inf(1))
}

// Scale multiplies every element of t by s in place.
func (t *Dense) Scale(s float64) *Dense {
	floats.Scale(s, t.data)
	return t
}

// IsFinite reports whether t contains neither NaNs nor infinities.
func (t *Dense) IsFinite() bool {
	for _, v := range t.data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Mat returns a matrix view of the rank-2 tensor t.
func (t *Dense) Mat() *mat.Dense {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("%#v", t.shape))
	}
	return mat.NewDense(t.shape[0], t.shape[1], t.data)
}

// FromMat copies m into a new rank-2 tensor.
func FromMat(m mat.Matrix) *Dense {
	r, c := m.Dims()
	t := Zeros(r, c)
	for i := range r {
		for j := range c {
			t.data[i*c+j] = m.At(i, j)
		}
	}
	return t
}

// Copy sets dst to a copy of src.
func Copy(dst, src *Dense) *Dense {
	if dst == src {
		return dst
	}
	dst.Reset(src.shape...)
	copy(dst.data, src.data)
	return dst
}

// Clone returns a deep copy of t.
func (t *Dense) Clone() *Dense {
	return Copy(&Dense{}, t)
}

// Transpose sets c to a with its axes permuted, so that axis i of c is axis axes[i] of a.
func Transpose(c, a *Dense, axes ...int) *Dense {
	if sameStorage(c, a) {
		panic("tensor: Transpose destination shares storage with its input")
	}
	if len(axes) != len(a.shape) {
		panic(fmt.Sprintf("%#v %#v", a.shape, axes))
	}
	seen := make([]bool, len(axes))
	shape := make([]int, len(axes))
	aStrides := strides(a.shape)
	st := make([]int, len(axes))
	for i, ax := range axes {
		if ax < 0 || ax >= len(axes) || seen[ax] {
			panic(fmt.Sprintf("%#v %#v", a.shape, axes))
		}
		seen[ax] = true
		shape[i] = a.shape[ax]
		st[i] = aStrides[ax]
	}
	c.Reset(shape...)

	ijk := make([]int, len(shape))
	offset := 0
	for k := range c.data {
		c.data[k] = a.data[offset]
		for i := len(shape) - 1; i >= 0; i-- {
			ijk[i]++
			offset += st[i]
			if ijk[i] < shape[i] {
				break
			}
			offset -= st[i] * shape[i]
			ijk[i] = 0
		}
	}
	return c
}

// Product sets c to the tensor product of a and b contracted over axes.
// Each element of axes pairs an axis of a with an axis of b.
// The axes of c are the uncontracted axes of a followed by the uncontracted axes of b, each in their original order.
func Product(c, a, b *Dense, axes [][2]int) *Dense {
	if sameStorage(c, a) || sameStorage(c, b) {
		panic("tensor: Product destination shares storage with its inputs")
	}
	contractedA := make([]bool, len(a.shape))
	contractedB := make([]bool, len(b.shape))
	k := 1
	for _, ax := range axes {
		i, j := ax[0], ax[1]
		if i < 0 || i >= len(a.shape) || j < 0 || j >= len(b.shape) {
			panic(fmt.Sprintf("%#v %#v %#v", a.shape, b.shape, axes))
		}
		if contractedA[i] || contractedB[j] || a.shape[i] != b.shape[j] {
			panic(fmt.Sprintf("%#v %#v %#v", a.shape, b.shape, axes))
		}
		contractedA[i], contractedB[j] = true, true
		k *= a.shape[i]
	}

	shape := make([]int, 0, len(a.shape)+len(b.shape)-2*len(axes))
	permA := make([]int, 0, len(a.shape))
	m := 1
	for i, d := range a.shape {
		if !contractedA[i] {
			permA = append(permA, i)
			shape = append(shape, d)
			m *= d
		}
	}
	permB := make([]int, 0, len(b.shape))
	for _, ax := range axes {
		permA = append(permA, ax[0])
		permB = append(permB, ax[1])
	}
	n := 1
	for j, d := range b.shape {
		if !contractedB[j] {
			permB = append(permB, j)
			shape = append(shape, d)
			n *= d
		}
	}

	at := permuted(a, permA)
	bt := permuted(b, permB)
	c.Reset(shape...)
	cm := mat.NewDense(m, n, c.data)
	cm.Mul(mat.NewDense(m, k, at.data), mat.NewDense(k, n, bt.data))
	return c
}

// SVD computes the thin singular value decomposition a = u diag(s) vᵀ of the rank-2 tensor a.
// The singular values are returned in descending order.
// The ordering of singular vectors within a degenerate subspace is whatever LAPACK produces.
func SVD(a *Dense) (u *Dense, s []float64, v *Dense, err error) {
	if !a.IsFinite() {
		return nil, nil, nil, errors.Errorf("non finite matrix %#v", a.shape)
	}
	var svd mat.SVD
	if ok := svd.Factorize(a.Mat(), mat.SVDThin); !ok {
		return nil, nil, nil, errors.Errorf("svd did not converge %#v", a.shape)
	}
	var um, vm mat.Dense
	svd.UTo(&um)
	svd.VTo(&vm)
	return FromMat(&um), svd.Values(nil), FromMat(&vm), nil
}

// SingularValues returns the singular values of the rank-2 tensor a in descending order.
func SingularValues(a *Dense) ([]float64, error) {
	if !a.IsFinite() {
		return nil, errors.Errorf("non finite matrix %#v", a.shape)
	}
	var svd mat.SVD
	if ok := svd.Factorize(a.Mat(), mat.SVDNone); !ok {
		return nil, errors.Errorf("svd did not converge %#v", a.shape)
	}
	return svd.Values(nil), nil
}

// AllClose reports whether a and b have the same shape and elements within tol of each other.
func AllClose(a, b *Dense, tol float64) bool {
	if !slices.Equal(a.shape, b.shape) {
		return false
	}
	return floats.EqualApprox(a.data, b.data, tol)
}

func (t *Dense) String() string {
	shapeStrs := make([]string, 0, len(t.shape))
	for _, d := range t.shape {
		shapeStrs = append(shapeStrs, strconv.Itoa(d))
	}
	ss := make([]string, 0, len(t.data))
	for _, v := range t.data {
		ss = append(ss, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return fmt.Sprintf("[%s][%s]", strings.Join(shapeStrs, ","), strings.Join(ss, ","))
}

func (t *Dense) offset(ijk []int) int {
	if len(ijk) != len(t.shape) {
		panic(fmt.Sprintf("%#v %#v", t.shape, ijk))
	}
	offset := 0
	for i, d := range t.shape {
		if ijk[i] < 0 || ijk[i] >= d {
			panic(fmt.Sprintf("%#v %#v", t.shape, ijk))
		}
		offset = offset*d + ijk[i]
	}
	return offset
}

func permuted(a *Dense, perm []int) *Dense {
	identity := true
	for i, p := range perm {
		if i != p {
			identity = false
			break
		}
	}
	if identity {
		return a
	}
	return Transpose(&Dense{}, a, perm...)
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = s
		s *= shape[i]
	}
	return st
}

func size(shape []int) int {
	n := 1
	for _, d := range shape {
		if d <= 0 {
			panic(fmt.Sprintf("%#v", shape))
		}
		n *= d
	}
	return n
}

func sameStorage(a, b *Dense) bool {
	if cap(a.data) == 0 || cap(b.data) == 0 {
		return false
	}
	return &a.data[:cap(a.data)][cap(a.data)-1] == &b.data[:cap(b.data)][cap(b.data)-1]
}
