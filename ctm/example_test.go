package ctm_test

import (
	"context"
	"fmt"
	"log"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/ctm"
)

func ExampleRun() {
	l, err := ipeps.NewLattice(1, 1)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	s := ipeps.ProductState(l, []float64{1, 1}, []float64{1, 0.5})
	env, err := ctm.InitEnv(s, 4, ctm.InitTrace, nil)
	if err != nil {
		log.Fatalf("%+v", err)
	}

	opt := ctm.NewOptions().MaxIterations(10)
	conv := ctm.CornerSpectrumConvergence(opt.GetConvTol())
	_, h, _, err := ctm.Run(context.Background(), s, env, conv, ctm.SpectrumHistory{}, opt)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	fmt.Printf("sweeps %d spectrum %.3f\n", len(h.Distances)+1, h.Last[0][ctm.LeftUp])
	// Output: sweeps 2 spectrum [1.000 0.000 0.000 0.000]
}
