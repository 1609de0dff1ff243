package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/fumin/ipeps"
	"github.com/fumin/ipeps/ctm"
	"github.com/fumin/ipeps/store"
)

const (
	fnameDB = "runs.db"
)

var (
	configPath  = flag.String("c", "", "yaml configuration, defaults are used if empty")
	runDir      = flag.String("d", filepath.Join("runs", "ctmrg"), "run directory")
	inState     = flag.String("instate", "", "json state, a random state is generated if empty")
	outState    = flag.String("outstate", "", "write the state as json to this path")
	metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address")
)

// Config is the configuration of a run.
type Config struct {
	// Unit cell and random state, unless a state is given with -instate.
	LX   int    `yaml:"lx"`
	LY   int    `yaml:"ly"`
	Phys int    `yaml:"phys"`
	Bond int    `yaml:"bond"`
	Seed uint64 `yaml:"seed"`

	Chi             int      `yaml:"chi"`
	Init            string   `yaml:"init"`
	Projector       string   `yaml:"projector"`
	Moves           []string `yaml:"moves"`
	MaxIterations   int      `yaml:"maxIterations"`
	ConvTol         float64  `yaml:"convTol"`
	SVDRelTol       float64  `yaml:"svdRelTol"`
	Workers         int      `yaml:"workers"`
	RecomputeAbsorb bool     `yaml:"recomputeAbsorb"`
	Verbosity       int      `yaml:"verbosity"`
}

func defaultConfig() Config {
	opt := ctm.NewOptions()
	cfg := Config{LX: 1, LY: 1, Phys: 2, Bond: 2, Seed: 1}
	cfg.Chi = 8
	cfg.Init = ctm.InitTrace.String()
	cfg.Projector = ctm.Projector4x4.String()
	for _, d := range ctm.DefaultMoveSequence {
		cfg.Moves = append(cfg.Moves, d.String())
	}
	cfg.MaxIterations = opt.GetMaxIterations()
	cfg.ConvTol = opt.GetConvTol()
	cfg.SVDRelTol = 1e-8
	cfg.Verbosity = 1
	return cfg
}

func readConfig(r io.Reader) (Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}

func (cfg Config) options() (ctm.Options, error) {
	opt := ctm.NewOptions().
		MaxIterations(cfg.MaxIterations).
		ConvTol(cfg.ConvTol).
		ProjectorSVDRelTol(cfg.SVDRelTol).
		RecomputeAbsorb(cfg.RecomputeAbsorb).
		Verbosity(cfg.Verbosity)
	if cfg.Workers > 0 {
		opt = opt.Workers(cfg.Workers)
	}

	pm, err := ctm.ParseProjectorMethod(cfg.Projector)
	if err != nil {
		return ctm.Options{}, errors.Wrap(err, "")
	}
	opt = opt.ProjectorMethod(pm)

	moves := make([]ctm.Direction, 0, len(cfg.Moves))
	for _, s := range cfg.Moves {
		d, err := ctm.ParseDirection(s)
		if err != nil {
			return ctm.Options{}, errors.Wrap(err, "")
		}
		moves = append(moves, d)
	}
	opt = opt.MoveSequence(moves...)
	return opt, nil
}

func loadState(cfg Config, path string) (*ipeps.State, error) {
	if path == "" {
		l, err := ipeps.NewLattice(cfg.LX, cfg.LY)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		if cfg.Phys <= 0 || cfg.Bond <= 0 {
			return nil, errors.Errorf("phys %d bond %d", cfg.Phys, cfg.Bond)
		}
		return ipeps.RandState(rand.New(rand.NewPCG(cfg.Seed, 0)), l, cfg.Phys, cfg.Bond), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	defer f.Close()
	s, err := ipeps.ReadJSON(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return s, nil
}

func writeState(path string, s *ipeps.State) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if err := ipeps.WriteJSON(f, s); err != nil {
		f.Close()
		return errors.Wrap(err, "")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

type metrics struct {
	moveDuration  *prometheus.HistogramVec
	sweepDuration prometheus.Histogram
	sweeps        prometheus.Counter
	distance      prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	m := &metrics{}
	m.moveDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ctmrg_move_duration_seconds",
		Help:    "Duration of a move by direction",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"direction"})
	m.sweepDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "ctmrg_sweep_duration_seconds",
		Help:    "Duration of a sweep",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})
	m.sweeps = f.NewCounter(prometheus.CounterOpts{
		Name: "ctmrg_sweeps_total",
		Help: "Total completed sweeps",
	})
	m.distance = f.NewGauge(prometheus.GaugeOpts{
		Name: "ctmrg_spectrum_distance",
		Help: "Corner spectrum distance between the last two sweeps",
	})
	return m
}

func (m *metrics) ObserveMove(sweep int, dir ctm.Direction, d time.Duration) {
	m.moveDuration.WithLabelValues(dir.String()).Observe(d.Seconds())
}

func (m *metrics) ObserveSweep(sweep int, d time.Duration) {
	m.sweepDuration.Observe(d.Seconds())
	m.sweeps.Inc()
}

type result struct {
	runID   string
	env     *ctm.Env
	history ctm.SpectrumHistory
	sweeps  int
	elapsed time.Duration
}

func run(ctx context.Context, db *store.DB, cfg Config, s *ipeps.State, m *metrics) (result, error) {
	opt, err := cfg.options()
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}
	opt = opt.Observer(m)
	initType, err := ctm.ParseInitType(cfg.Init)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}
	env, err := ctm.InitEnv(s, cfg.Chi, initType, rand.New(rand.NewPCG(cfg.Seed, 1)))
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}

	b, err := yaml.Marshal(cfg)
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}
	res := result{}
	res.runID, err = db.NewRun(ctx, string(b))
	if err != nil {
		return result{}, errors.Wrap(err, "")
	}

	start := time.Now()
	spectrumConv := ctm.CornerSpectrumConvergence(opt.GetConvTol())
	conv := func(s *ipeps.State, env *ctm.Env, h ctm.SpectrumHistory) (bool, ctm.SpectrumHistory, error) {
		converged, h, err := spectrumConv(s, env, h)
		if err != nil {
			return false, h, errors.Wrap(err, "")
		}
		dist := math.NaN()
		if n := len(h.Distances); n > 0 {
			dist = h.Distances[n-1]
			m.distance.Set(dist)
		}
		sw := store.Sweep{Sweep: res.sweeps, Elapsed: time.Since(start), Distance: dist}
		if err := db.AddSweep(ctx, res.runID, sw, s.Lattice.Sites(), h.Last); err != nil {
			return false, h, errors.Wrap(err, "")
		}
		res.sweeps++
		return converged, h, nil
	}
	res.env, res.history, res.elapsed, err = ctm.Run(ctx, s, env, conv, ctm.SpectrumHistory{}, opt)
	if err != nil {
		return result{}, errors.Wrap(err, res.runID)
	}
	return res, nil
}

func printSpectra(w io.Writer, s *ipeps.State, h ctm.SpectrumHistory) {
	fmt.Fprintf(w, "x,y,corner,spectrum\n")
	for i, c := range s.Lattice.Sites() {
		for _, corner := range ctm.Corners {
			fmt.Fprintf(w, "%d,%d,%v,%v\n", c.X, c.Y, corner, h.Last[i][corner])
		}
	}
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr() error {
	cfg := defaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			return errors.Wrap(err, "")
		}
		cfg, err = readConfig(f)
		f.Close()
		if err != nil {
			return errors.Wrap(err, *configPath)
		}
	}
	s, err := loadState(cfg, *inState)
	if err != nil {
		return errors.Wrap(err, "")
	}
	if *outState != "" {
		if err := writeState(*outState, s); err != nil {
			return errors.Wrap(err, "")
		}
	}

	if err := os.MkdirAll(*runDir, os.ModePerm); err != nil {
		return errors.Wrap(err, "")
	}
	db, err := store.Open(filepath.Join(*runDir, fnameDB))
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)

	g, gctx := errgroup.WithContext(ctx)
	var srv *http.Server
	if *metricsAddr != "" {
		srv = &http.Server{Addr: *metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return errors.Wrap(err, "")
			}
			return nil
		})
	}
	g.Go(func() error {
		if srv != nil {
			defer srv.Shutdown(context.Background())
		}
		res, err := run(gctx, db, cfg, s, m)
		if err != nil {
			return errors.Wrap(err, "")
		}
		log.Printf("run %s %d sweeps %v", res.runID, res.sweeps, res.elapsed)
		printSpectra(os.Stdout, s, res.history)
		return nil
	})
	return g.Wait()
}
