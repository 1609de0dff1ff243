package ctm

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrConfig is returned for invalid configurations, such as unknown directions or non positive bond dimensions.
	ErrConfig = errors.New("ctm: bad configuration")
	// ErrDegenerate is returned when a truncation or normalization meets a vanishing or non finite tensor.
	ErrDegenerate = errors.New("ctm: degenerate environment")
)

// ProjectorMethod selects how projectors are computed.
type ProjectorMethod int

const (
	// Projector4x4 builds projectors from the two halves of the 4x4 network around a 2x2 plaquette.
	Projector4x4 ProjectorMethod = iota + 1
	// Projector4x2 builds projectors from the two enlarged corners on the leading side only.
	Projector4x2
)

// ParseProjectorMethod parses "4x4" or "4x2".
func ParseProjectorMethod(s string) (ProjectorMethod, error) {
	switch strings.ToUpper(s) {
	case "4X4":
		return Projector4x4, nil
	case "4X2":
		return Projector4x2, nil
	default:
		return 0, errors.Wrap(ErrConfig, fmt.Sprintf("unknown projector method %q", s))
	}
}

func (m ProjectorMethod) String() string {
	switch m {
	case Projector4x4:
		return "4x4"
	case Projector4x2:
		return "4x2"
	default:
		return fmt.Sprintf("ProjectorMethod(%d)", int(m))
	}
}

// Observer receives timings of a run.
type Observer interface {
	ObserveMove(sweep int, dir Direction, d time.Duration)
	ObserveSweep(sweep int, d time.Duration)
}

// Options are options for the CTMRG algorithm.
type Options struct {
	maxIterations   int
	moveSequence    []Direction
	projectorMethod ProjectorMethod
	convTol         float64
	svdRelTol       float64
	workers         int
	recomputeAbsorb bool
	verbosity       int
	observer        Observer
}

// NewOptions returns the default CTMRG options.
func NewOptions() Options {
	opt := Options{}
	opt.maxIterations = 50
	opt.moveSequence = DefaultMoveSequence
	opt.projectorMethod = Projector4x4
	opt.convTol = 1e-8
	opt.svdRelTol = 1e-8
	opt.workers = runtime.GOMAXPROCS(0)
	return opt
}

// MaxIterations sets the maximum number of sweeps.
func (opt Options) MaxIterations(i int) Options {
	opt.maxIterations = i
	return opt
}

// MoveSequence sets the moves performed in every sweep.
func (opt Options) MoveSequence(dirs ...Direction) Options {
	opt.moveSequence = append([]Direction(nil), dirs...)
	return opt
}

// ProjectorMethod sets the projector method.
func (opt Options) ProjectorMethod(m ProjectorMethod) Options {
	opt.projectorMethod = m
	return opt
}

// ConvTol sets the tolerance handed to convergence predicates.
// The algorithm itself does not read it.
func (opt Options) ConvTol(tol float64) Options {
	opt.convTol = tol
	return opt
}

// ProjectorSVDRelTol sets the relative cutoff below which singular values are discarded when building projectors.
func (opt Options) ProjectorSVDRelTol(tol float64) Options {
	opt.svdRelTol = tol
	return opt
}

// Workers sets the number of sites processed concurrently within a move.
func (opt Options) Workers(n int) Options {
	opt.workers = n
	return opt
}

// RecomputeAbsorb makes every absorption allocate and release its own scratch tensors,
// instead of reusing buffers held for the whole move.
// It lowers peak memory for large bond dimensions and does not change results.
func (opt Options) RecomputeAbsorb(b bool) Options {
	opt.recomputeAbsorb = b
	return opt
}

// Verbosity sets logging: 1 logs sweeps and convergence, 2 also logs every move.
func (opt Options) Verbosity(v int) Options {
	opt.verbosity = v
	return opt
}

// Observer sets an observer of run timings.
func (opt Options) Observer(o Observer) Options {
	opt.observer = o
	return opt
}

// GetConvTol returns the convergence tolerance.
func (opt Options) GetConvTol() float64 { return opt.convTol }

// GetMaxIterations returns the maximum number of sweeps.
func (opt Options) GetMaxIterations() int { return opt.maxIterations }

func (opt Options) validate() error {
	if opt.maxIterations <= 0 {
		return errors.Wrap(ErrConfig, fmt.Sprintf("max iterations %d", opt.maxIterations))
	}
	if len(opt.moveSequence) == 0 {
		return errors.Wrap(ErrConfig, "empty move sequence")
	}
	for _, d := range opt.moveSequence {
		if !d.valid() {
			return errors.Wrap(ErrConfig, fmt.Sprintf("unknown direction %d", int(d)))
		}
	}
	if opt.projectorMethod != Projector4x4 && opt.projectorMethod != Projector4x2 {
		return errors.Wrap(ErrConfig, fmt.Sprintf("unknown projector method %d", int(opt.projectorMethod)))
	}
	if opt.workers <= 0 {
		return errors.Wrap(ErrConfig, fmt.Sprintf("workers %d", opt.workers))
	}
	if opt.svdRelTol < 0 {
		return errors.Wrap(ErrConfig, fmt.Sprintf("svd relative tolerance %g", opt.svdRelTol))
	}
	return nil
}
