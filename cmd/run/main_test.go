package main

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gopkg.in/yaml.v3"

	"github.com/fumin/ipeps/ctm"
	"github.com/fumin/ipeps/store"
)

func TestReadConfig(t *testing.T) {
	t.Parallel()
	cfg, err := readConfig(strings.NewReader("chi: 4\nprojector: 4x2\nmoves: [left, right]\n"))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if cfg.Chi != 4 || cfg.Projector != "4x2" || len(cfg.Moves) != 2 || cfg.LX != 1 {
		t.Fatalf("%#v", cfg)
	}
	if _, err := cfg.options(); err != nil {
		t.Fatalf("%+v", err)
	}

	cfg, err = readConfig(strings.NewReader(""))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if cfg.Chi != defaultConfig().Chi {
		t.Fatalf("%#v", cfg)
	}

	if _, err := readConfig(strings.NewReader("chii: 4\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}

	// The stored configuration reads back into the same options.
	b, err := yaml.Marshal(defaultConfig())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	cfg, err = readConfig(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if cfg.Init != "trace" || cfg.MaxIterations != defaultConfig().MaxIterations {
		t.Fatalf("%#v", cfg)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  func(Config) Config
	}{
		{
			name: "move",
			cfg: func(c Config) Config {
				c.Moves = []string{"up", "sideways"}
				return c
			},
		},
		{
			name: "projector",
			cfg: func(c Config) Config {
				c.Projector = "2x2"
				return c
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := test.cfg(defaultConfig()).options(); !errors.Is(err, ctm.ErrConfig) {
				t.Fatalf("%+v", err)
			}
		})
	}
}

func TestRun(t *testing.T) {
	t.Parallel()
	dir, err := os.MkdirTemp("", "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer os.RemoveAll(dir)
	db, err := store.Open(filepath.Join(dir, fnameDB))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	defer db.Close()

	cfg := defaultConfig()
	cfg.LX, cfg.LY = 2, 1
	cfg.Chi = 4
	cfg.MaxIterations = 6
	cfg.Verbosity = 0
	s, err := loadState(cfg, "")
	if err != nil {
		t.Fatalf("%+v", err)
	}
	statePath := filepath.Join(dir, "state.json")
	if err := writeState(statePath, s); err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := loadState(cfg, statePath); err != nil {
		t.Fatalf("%+v", err)
	}

	m := newMetrics(prometheus.NewRegistry())
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	res, err := run(ctx, db, cfg, s, m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := res.env.CheckShapes(s); err != nil {
		t.Fatalf("%+v", err)
	}

	sweeps, err := db.Sweeps(ctx, res.runID)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(sweeps) != res.sweeps || res.sweeps == 0 {
		t.Fatalf("%d, expected %d", len(sweeps), res.sweeps)
	}
	if !math.IsNaN(sweeps[0].Distance) {
		t.Fatalf("%#v", sweeps[0])
	}
	if n := testutil.ToFloat64(m.sweeps); n != float64(res.sweeps) {
		t.Fatalf("%f, expected %d", n, res.sweeps)
	}
	if n := testutil.CollectAndCount(m.moveDuration); n != 4 {
		t.Fatalf("%d", n)
	}

	spectra, err := db.Spectra(ctx, res.runID, res.sweeps-1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(spectra) != 2 {
		t.Fatalf("%v", spectra)
	}

	var out bytes.Buffer
	printSpectra(&out, s, res.history)
	if lines := strings.Count(out.String(), "\n"); lines != 1+2*4 {
		t.Fatalf("%s", out.String())
	}
}
