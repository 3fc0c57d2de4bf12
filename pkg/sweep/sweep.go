// Package sweep measures link bit error rates over a grid of phase epsilon
// and cycle counts. Every trial builds its own agents, so trials run
// concurrently.
package sweep

import (
	"context"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/r3d91ll/chime/pkg/agent"
	"github.com/r3d91ll/chime/pkg/errors"
	"github.com/r3d91ll/chime/pkg/evolution"
	"github.com/r3d91ll/chime/pkg/link"
	"github.com/r3d91ll/chime/pkg/oscillator"
)

// Grid is the set of (epsilon, cycles) points to measure.
type Grid struct {
	Epsilons []float64 `json:"epsilons" yaml:"epsilons"`
	Cycles   []int     `json:"cycles" yaml:"cycles"`
}

// Size is the number of points in the grid.
func (g Grid) Size() int { return len(g.Epsilons) * len(g.Cycles) }

// Options configure a sweep.
type Options struct {
	Base             evolution.Config
	Mode             link.Mode
	Primes           []int
	Seeds            map[int][]oscillator.Seed
	Message          string
	Trials           int // per point, default 1
	Concurrency      int // default GOMAXPROCS
	EntangleStrength float64
	AllowCompression bool

	// RandSeed seeds each trial's correction source together with the
	// trial index, so runs are reproducible.
	RandSeed uint64

	Logger *zap.Logger
	// Progress is called after each trial, possibly from several goroutines.
	Progress func(done, total int)
}

// Point is the aggregated result of one grid point.
type Point struct {
	Epsilon   float64 `json:"epsilon"`
	Cycles    int     `json:"cycles"`
	Trials    int     `json:"trials"`
	Successes int     `json:"successes"`
	BitErrors int     `json:"bit_errors"`
	FrameBits int     `json:"frame_bits"`
}

// BitErrorRate is BitErrors over FrameBits across all trials.
func (p Point) BitErrorRate() float64 {
	if p.FrameBits == 0 {
		return 0
	}
	return float64(p.BitErrors) / float64(p.FrameBits)
}

// SuccessRate is the share of trials whose text arrived intact.
func (p Point) SuccessRate() float64 {
	if p.Trials == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Trials)
}

// Run measures every grid point. Points come back in grid order: epsilons
// outer, cycles inner. The first trial error cancels the rest.
func Run(ctx context.Context, grid Grid, opts Options) ([]Point, error) {
	if grid.Size() == 0 {
		return nil, errors.ValidationError(errors.ErrValidationRequired, "sweep grid is empty").
			WithSuggestion("Pass at least one --epsilon and one --cycles value")
	}
	if opts.Message == "" {
		return nil, errors.ValidationError(errors.ErrValidationRequired, "sweep message is empty").
			WithContext("field", "message")
	}
	for _, c := range grid.Cycles {
		if c < 0 {
			return nil, errors.ValidationErrorf(errors.ErrValidationOutOfRange, "cycles must not be negative: %d", c).
				WithContext("field", "cycles")
		}
	}
	if opts.Trials < 1 {
		opts.Trials = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	points := make([]Point, 0, grid.Size())
	for _, eps := range grid.Epsilons {
		for _, cyc := range grid.Cycles {
			points = append(points, Point{Epsilon: eps, Cycles: cyc, Trials: opts.Trials})
		}
	}

	total := len(points) * opts.Trials
	results := make([]link.Outcome, total)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range total {
		pt := points[i/opts.Trials]
		trial := i % opts.Trials
		g.Go(func() error {
			out, err := runTrial(gctx, pt, trial, opts)
			if err != nil {
				return err
			}
			results[i] = out
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i, out := range results {
		p := &points[i/opts.Trials]
		p.BitErrors += out.BitErrors
		p.FrameBits += out.FrameBits
		if out.Success {
			p.Successes++
		}
	}
	for _, p := range points {
		opts.Logger.Debug("sweep point",
			zap.Float64("epsilon", p.Epsilon),
			zap.Int("cycles", p.Cycles),
			zap.Float64("ber", p.BitErrorRate()),
			zap.Float64("success_rate", p.SuccessRate()))
	}
	return points, nil
}

func runTrial(ctx context.Context, pt Point, trial int, opts Options) (link.Outcome, error) {
	cfg := opts.Base
	cfg.Epsilon = pt.Epsilon
	cfg.Cycles = pt.Cycles

	sender := agent.New("sender", opts.Primes, opts.Seeds, cfg, nil)
	receiver := agent.New("receiver", opts.Primes, opts.Seeds, cfg, nil)
	l := link.New(sender, receiver, link.Options{
		Config:           cfg,
		Mode:             opts.Mode,
		EntangleStrength: opts.EntangleStrength,
		AllowCompression: opts.AllowCompression,
		Rand:             rand.New(rand.NewPCG(opts.RandSeed, uint64(trial))),
	})

	out, err := l.Transmit(ctx, opts.Message)
	if err != nil {
		return out, errors.WrapInternal(err, errors.ErrSweepTrialFailed, "sweep trial failed").
			WithContextf("epsilon", pt.Epsilon).
			WithContextf("cycles", pt.Cycles).
			WithContextf("trial", trial)
	}
	return out, nil
}
