package ctm

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/tensor"
)

// CornerSpectrum returns the singular values of the corner c divided by the largest one, padded with zeros to length n.
func CornerSpectrum(c *tensor.Dense, n int) ([]float64, error) {
	s, err := tensor.SingularValues(c)
	if err != nil {
		return nil, errors.Wrap(ErrDegenerate, err.Error())
	}
	if len(s) == 0 || !(s[0] > 0) {
		return nil, errors.Wrap(ErrDegenerate, fmt.Sprintf("singular values %v", s))
	}
	spec := make([]float64, max(n, len(s)))
	copy(spec, s)
	floats.Scale(1/s[0], spec)
	return spec, nil
}

// Spectra returns the spectra of the four corners of every site, in the order of the lattice sites.
func Spectra(env *Env) ([][4][]float64, error) {
	sites := env.Lattice().Sites()
	spectra := make([][4][]float64, len(sites))
	for i, x := range sites {
		for _, corner := range Corners {
			s, err := CornerSpectrum(env.C(x, corner), env.Chi)
			if err != nil {
				return nil, errors.Wrap(err, fmt.Sprintf("%v %v", x, corner))
			}
			spectra[i][corner] = s
		}
	}
	return spectra, nil
}

// SpectrumDistance returns the largest Euclidean distance between corresponding corner spectra of a and b.
// A spectrum shorter than its counterpart is treated as padded with zeros.
func SpectrumDistance(a, b [][4][]float64) float64 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("%d %d", len(a), len(b)))
	}
	var d float64
	for i := range a {
		for k := range 4 {
			x, y := pad(a[i][k], len(b[i][k])), pad(b[i][k], len(a[i][k]))
			d = max(d, floats.Distance(x, y, 2))
		}
	}
	return d
}

func pad(x []float64, n int) []float64 {
	if len(x) >= n {
		return x
	}
	p := make([]float64, n)
	copy(p, x)
	return p
}

// SpectrumHistory is the history kept by CornerSpectrumConvergence.
type SpectrumHistory struct {
	// Last holds the corner spectra after the latest sweep.
	Last [][4][]float64
	// Distances holds the distance between the spectra of consecutive sweeps, starting from the second sweep.
	Distances []float64
}

// CornerSpectrumConvergence returns a predicate that declares convergence
// once the corner spectra of two consecutive sweeps are within tol of each other.
func CornerSpectrumConvergence(tol float64) Convergence[SpectrumHistory] {
	return func(state *ipeps.State, env *Env, h SpectrumHistory) (bool, SpectrumHistory, error) {
		spectra, err := Spectra(env)
		if err != nil {
			return false, h, errors.Wrap(err, "")
		}
		if h.Last == nil {
			h.Last = spectra
			return false, h, nil
		}
		d := SpectrumDistance(h.Last, spectra)
		h.Distances = append(h.Distances, d)
		h.Last = spectra
		return d < tol, h, nil
	}
}
