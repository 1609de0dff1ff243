package ctm

import (
	"fmt"
	"log"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// scratch holds the intermediate tensors of a contraction.
type scratch struct {
	bufs [2]*tensor.Dense
}

func newScratch() *scratch {
	return &scratch{bufs: [2]*tensor.Dense{{}, {}}}
}

func (s *scratch) get(i int) *tensor.Dense { return s.bufs[i] }

// scratchPool hands out scratch buffers to at most workers concurrent goroutines.
// Without reuse, every request gets fresh buffers that are dropped once returned.
type scratchPool struct {
	reuse bool
	ch    chan *scratch
}

func newScratchPool(workers int, reuse bool) *scratchPool {
	p := &scratchPool{reuse: reuse}
	if reuse {
		p.ch = make(chan *scratch, workers)
		for range workers {
			p.ch <- newScratch()
		}
	}
	return p
}

func (p *scratchPool) take() *scratch {
	if !p.reuse {
		return newScratch()
	}
	return <-p.ch
}

func (p *scratchPool) put(s *scratch) {
	if !p.reuse {
		return
	}
	p.ch <- s
}

// mover performs directional moves on an environment.
type mover struct {
	state   *ipeps.State
	env     *Env
	dls     *doubleLayers
	corners *cornerCache
	builder projectorBuilder
	pool    *scratchPool
	opt     Options
}

func newMover(state *ipeps.State, env *Env, opt Options) (*mover, error) {
	builder, err := newProjectorBuilder(opt.projectorMethod)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	// Every move writes the new tensors of a site onto its neighbour,
	// which must be a one to one map of the sites for the writes not to collide.
	l := state.Lattice
	for d := Up; d <= Left; d++ {
		seen := make(map[ipeps.Coord]struct{}, l.Len())
		for _, x := range l.Sites() {
			seen[l.Site(x.Sub(d.Vec()))] = struct{}{}
		}
		if len(seen) != l.Len() {
			return nil, errors.Wrap(ErrConfig, fmt.Sprintf("tiling is not invariant under a shift %v", d))
		}
	}

	mv := &mover{
		state:   state,
		env:     env,
		dls:     newDoubleLayers(state),
		corners: newCornerCache(l),
		builder: builder,
		pool:    newScratchPool(opt.workers, !opt.recomputeAbsorb),
		opt:     opt,
	}
	return mv, nil
}

// move grows the environment by one row or column on side d, for all sites.
// The environment is left untouched if an error is returned.
func (mv *mover) move(d Direction) error {
	f := frame{dir: d}
	sites := mv.state.Lattice.Sites()

	// Compute the enlarged corners required by the projectors.
	var keys []cornerKey
	for _, x := range sites {
		keys = append(keys, mv.builder.corners(f, x, mv.corners)...)
	}
	var g errgroup.Group
	g.SetLimit(mv.opt.workers)
	for _, k := range mv.corners.missing(keys) {
		g.Go(func() error {
			bufs := mv.pool.take()
			defer mv.pool.put(bufs)
			x := sites[k.site]
			c := enlargedCorner(&tensor.Dense{}, k.corner, x, mv.env, mv.dls, bufs)
			if !c.IsFinite() {
				return errors.Wrap(ErrDegenerate, fmt.Sprintf("enlarged corner %v of %v", k.corner, x))
			}
			mv.corners.set(k, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "")
	}

	// Compute projectors.
	p := make([]*tensor.Dense, len(sites))
	pt := make([]*tensor.Dense, len(sites))
	for i, x := range sites {
		g.Go(func() error {
			r, rt := mv.builder.halves(f, x, mv.corners)
			d2 := mv.dls.dim(x, f.side(Left))
			var err error
			p[i], pt[i], err = projectors(r, rt, mv.env.Chi, d2, mv.opt.svdRelTol)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v %v", d, x))
			}
			if mv.opt.verbosity >= 2 {
				log.Printf("move %v site %v projectors %#v %#v", d, x, p[i].Shape(), pt[i].Shape())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "")
	}

	// Absorb and truncate.
	l := mv.state.Lattice
	nxt := mv.env.next()
	for i, x := range sites {
		g.Go(func() error {
			bufs := mv.pool.take()
			defer mv.pool.put(bufs)
			xr := l.Index(x.Add(f.vec(Right)))
			in := absorbInput{
				cl:  mv.env.C(x, f.corner(LeftUp)),
				tl:  mv.env.T(x, f.side(Left)),
				tu:  mv.env.T(x, f.side(Up)),
				tr:  mv.env.T(x, f.side(Right)),
				cr:  mv.env.C(x, f.corner(RightUp)),
				a:   mv.dls.site(x, int(d)),
				p:   p[i],
				pt:  pt[i],
				pr:  p[xr],
				ptr: pt[xr],
			}
			out, err := absorb(in, bufs)
			if err != nil {
				return errors.Wrap(err, fmt.Sprintf("%v %v", d, x))
			}
			// The new tensors belong to the site one step behind x, whose boundary has moved onto x.
			j := l.Index(x.Sub(d.Vec()))
			nxt.c[j][f.corner(LeftUp)] = out.cl
			nxt.t[j][f.side(Up)] = out.t
			nxt.c[j][f.corner(RightUp)] = out.cr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "")
	}

	mv.env.commit()
	mv.corners.invalidate(d)
	return nil
}

type absorbInput struct {
	// cl, tl, tu, tr and cr are the upper left corner, the left, upper and right edges, and the upper right corner in the frame of the move.
	cl, tl, tu, tr, cr *tensor.Dense
	a                  *tensor.Dense
	// p and pt are the projectors on the bond left of the site, pr and ptr those on the bond right of it.
	p, pt, pr, ptr *tensor.Dense
}

type absorbOutput struct {
	cl, t, cr *tensor.Dense
}

// absorb returns the upper corners and edge grown by one row and truncated with the projectors,
// each divided by its largest element.
func absorb(in absorbInput, bufs *scratch) (absorbOutput, error) {
	// ct is of shape {cRight, tlDown, tlRight}.
	ct := tensor.Product(bufs.get(0), in.cl, in.tl, [][2]int{{cFirstAxis, tLastAxis}})
	// cl is of shape {tlDown, pOut}.
	cl := tensor.Product(&tensor.Dense{}, ct, in.p, [][2]int{{0, 0}, {2, 1}})

	// ct is of shape {cLeft, trLeft, trDown}.
	ct = tensor.Product(bufs.get(0), in.cr, in.tr, [][2]int{{cSecondAxis, tFirstAxis}})
	// cr is of shape {ptOut, trDown}.
	cr := tensor.Product(&tensor.Dense{}, in.ptr, ct, [][2]int{{0, 0}, {1, 1}})

	// ptt is of shape {ptIn, ptOut, tuDown, tuRight}.
	ptt := tensor.Product(bufs.get(0), in.pt, in.tu, [][2]int{{0, tFirstAxis}})
	// ptta is of shape {ptOut, tuRight, aRight, aDown}.
	ptta := tensor.Product(bufs.get(1), ptt, in.a, [][2]int{{0, aLeftAxis}, {2, aUpAxis}})
	// t is of shape {ptOut, aDown, pOut}.
	t := tensor.Product(&tensor.Dense{}, ptta, in.pr, [][2]int{{1, 0}, {2, 1}})

	for _, x := range []*tensor.Dense{cl, t, cr} {
		if err := normalize(x); err != nil {
			return absorbOutput{}, errors.Wrap(err, "")
		}
	}
	return absorbOutput{cl: cl, t: t, cr: cr}, nil
}

// normalize divides t by its largest absolute element.
func normalize(t *tensor.Dense) error {
	if !t.IsFinite() {
		return errors.Wrap(ErrDegenerate, fmt.Sprintf("non finite %#v", t.Shape()))
	}
	m := t.MaxAbs()
	if m == 0 {
		return errors.Wrap(ErrDegenerate, fmt.Sprintf("zero %#v", t.Shape()))
	}
	t.Scale(1 / m)
	return nil
}
