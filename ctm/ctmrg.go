// Package ctm implements the directional corner transfer matrix renormalization group (CTMRG) algorithm,
// which approximates the environment of an infinite PEPS by corner and edge tensors of a finite bond dimension.
//
// A sweep consists of moves in the directions of a move sequence.
// A move in direction d absorbs one row or column on side d into the boundary of every site:
// projectors are computed from enlarged corners for every site first, and then all corners and edges on side d
// are grown and truncated together, replacing the environment only when every site has succeeded.
package ctm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/util"
)

// Convergence decides after every sweep whether a run has converged.
// It receives the history it returned after the previous sweep, and returns the history to pass to the next call.
type Convergence[H any] func(state *ipeps.State, env *Env, history H) (bool, H, error)

// Run performs CTMRG sweeps on env until conv reports convergence or the maximum number of sweeps is reached.
// A nil conv runs all sweeps.
// env is updated in place and returned, together with the last history and the elapsed time.
// ctx is checked between sweeps only.
func Run[H any](ctx context.Context, state *ipeps.State, env *Env, conv Convergence[H], history H, opt Options) (*Env, H, time.Duration, error) {
	start := time.Now()
	if err := opt.validate(); err != nil {
		return env, history, 0, errors.Wrap(err, "")
	}
	if env.Chi <= 0 {
		return env, history, 0, errors.Wrap(ErrConfig, fmt.Sprintf("chi %d", env.Chi))
	}
	if err := env.CheckShapes(state); err != nil {
		return env, history, 0, errors.Wrap(err, "")
	}
	mv, err := newMover(state, env, opt)
	if err != nil {
		return env, history, 0, errors.Wrap(err, "")
	}

	throttle := util.NewSkipThrottler(time.Second)
	for i := range opt.maxIterations {
		if err := ctx.Err(); err != nil {
			return env, history, time.Since(start), errors.Wrap(err, fmt.Sprintf("sweep %d", i))
		}

		sweepStart := time.Now()
		for _, d := range opt.moveSequence {
			moveStart := time.Now()
			if err := mv.move(d); err != nil {
				return env, history, time.Since(start), errors.Wrap(err, fmt.Sprintf("sweep %d", i))
			}
			if opt.observer != nil {
				opt.observer.ObserveMove(i, d, time.Since(moveStart))
			}
		}
		if opt.observer != nil {
			opt.observer.ObserveSweep(i, time.Since(sweepStart))
		}
		if opt.verbosity >= 2 || (opt.verbosity >= 1 && throttle.Ok()) {
			log.Printf("sweep %d %v", i, time.Since(start))
		}

		if conv == nil {
			continue
		}
		converged, h, err := conv(state, env, history)
		if err != nil {
			return env, history, time.Since(start), errors.Wrap(err, fmt.Sprintf("sweep %d", i))
		}
		history = h
		if converged {
			if opt.verbosity >= 1 {
				log.Printf("converged after %d sweeps %v", i+1, time.Since(start))
			}
			break
		}
	}
	return env, history, time.Since(start), nil
}
