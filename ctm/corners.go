package ctm

import (
	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// enlargedCorner sets dst to the corner c of the site x grown by one row and one column,
// that is the corner tensor contracted with its two adjacent edges and the double layer tensor.
// The result is a matrix whose rows fuse the leg of the preceding edge with the double layer leg beside it,
// and whose columns fuse the leg of the next edge with the double layer leg beside it.
// For the upper left corner these are the down and right legs.
func enlargedCorner(dst *tensor.Dense, c Corner, x ipeps.Coord, env *Env, dls *doubleLayers, bufs *scratch) *tensor.Dense {
	cc := env.C(x, c)
	next := env.T(x, c.next())
	prev := env.T(x, c.prev())
	a := dls.site(x, int(c))

	// ct is of shape {cFirst, nextIn, nextLast}.
	ct := tensor.Product(bufs.get(0), cc, next, [][2]int{{cSecondAxis, tFirstAxis}})
	// ctt is of shape {nextIn, nextLast, prevFirst, prevIn}.
	ctt := tensor.Product(bufs.get(1), ct, prev, [][2]int{{0, tLastAxis}})
	// ctta is of shape {nextLast, prevFirst, aRight, aDown}.
	ctta := tensor.Product(bufs.get(0), ctt, a, [][2]int{{0, aUpAxis}, {3, aLeftAxis}})
	// dst is of shape {prevFirst, aDown, nextLast, aRight}.
	tensor.Transpose(dst, ctta, 1, 3, 0, 2)
	s := dst.Shape()
	return dst.Reshape(s[0]*s[1], s[2]*s[3])
}

// cornerKey identifies an enlarged corner.
type cornerKey struct {
	corner Corner
	site   int
}

// cornerCache keeps the enlarged corners of the current environment generation.
// Entries are written only by the goroutine that computes them, and are read after all such goroutines finish.
type cornerCache struct {
	lattice ipeps.Lattice
	m       [][4]*tensor.Dense
}

func newCornerCache(l ipeps.Lattice) *cornerCache {
	return &cornerCache{lattice: l, m: make([][4]*tensor.Dense, l.Len())}
}

func (cc *cornerCache) key(c Corner, x ipeps.Coord) cornerKey {
	return cornerKey{corner: c, site: cc.lattice.Index(x)}
}

func (cc *cornerCache) get(c Corner, x ipeps.Coord) *tensor.Dense {
	k := cc.key(c, x)
	return cc.m[k.site][k.corner]
}

// missing returns the keys among keys that are not cached, without duplicates.
func (cc *cornerCache) missing(keys []cornerKey) []cornerKey {
	seen := make(map[cornerKey]struct{}, len(keys))
	var ms []cornerKey
	for _, k := range keys {
		if cc.m[k.site][k.corner] != nil {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		ms = append(ms, k)
	}
	return ms
}

func (cc *cornerCache) set(k cornerKey, t *tensor.Dense) { cc.m[k.site][k.corner] = t }

// invalidate drops the corners that depend on tensors replaced by a move in direction d.
// Such a move replaces the two corners and the edge on side d, which enter only the two corners on that side.
func (cc *cornerCache) invalidate(d Direction) {
	c0, c1 := Corner(d), Corner(d).rotate(1)
	for i := range cc.m {
		cc.m[i][c0] = nil
		cc.m[i][c1] = nil
	}
}
