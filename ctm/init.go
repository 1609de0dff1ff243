package ctm

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// InitType selects how an environment is initialized.
type InitType int

const (
	// InitTrace starts from the boundary of bond dimension one that traces out the ket and bra legs at the edge.
	InitTrace InitType = iota + 1
	// InitRandom starts from random tensors of bond dimension chi.
	InitRandom
)

// ParseInitType parses "trace" or "random".
func ParseInitType(s string) (InitType, error) {
	switch strings.ToLower(s) {
	case "trace":
		return InitTrace, nil
	case "random":
		return InitRandom, nil
	default:
		return 0, errors.Wrap(ErrConfig, fmt.Sprintf("unknown init type %q", s))
	}
}

func (it InitType) String() string {
	switch it {
	case InitTrace:
		return "trace"
	case InitRandom:
		return "random"
	default:
		return fmt.Sprintf("InitType(%d)", int(it))
	}
}

// InitEnv returns an initial environment for s with bond dimension chi.
// rnd is only used by InitRandom.
func InitEnv(s *ipeps.State, chi int, init InitType, rnd *rand.Rand) (*Env, error) {
	e, err := NewEnv(s.Lattice, chi)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	switch init {
	case InitTrace:
		initTrace(e, s)
	case InitRandom:
		if rnd == nil {
			return nil, errors.Wrap(ErrConfig, "random init without a random source")
		}
		initRandom(e, s, rnd)
	default:
		return nil, errors.Wrap(ErrConfig, fmt.Sprintf("unknown init type %d", int(init)))
	}
	return e, nil
}

func initTrace(e *Env, s *ipeps.State) {
	for _, x := range s.Lattice.Sites() {
		a := s.Site(x).Shape()
		for _, corner := range Corners {
			e.SetC(x, corner, tensor.New([]float64{1}, 1, 1))
		}
		for side := Up; side <= Left; side++ {
			d := a[1+siteAxis(side)]
			t := tensor.Zeros(1, d*d, 1)
			for i := range d {
				t.SetAt([]int{0, i*d + i, 0}, 1)
			}
			e.SetT(x, side, t)
		}
	}
}

func initRandom(e *Env, s *ipeps.State, rnd *rand.Rand) {
	for _, x := range s.Lattice.Sites() {
		a := s.Site(x).Shape()
		for _, corner := range Corners {
			e.SetC(x, corner, tensor.Rand(rnd, e.Chi, e.Chi))
		}
		for side := Up; side <= Left; side++ {
			d := a[1+siteAxis(side)]
			e.SetT(x, side, tensor.Rand(rnd, e.Chi, d*d, e.Chi))
		}
	}
}
