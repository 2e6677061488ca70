package bench

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/downfa11-org/rill/pkg/client"
	"github.com/downfa11-org/rill/util"
)

// BenchmarkRunner executes every enabled (transport, kind) pass.
type BenchmarkRunner struct {
	Config *Config
	// NewFactory builds the client factory of a transport; tests replace it.
	NewFactory func(transport string) (client.Factory, error)
}

func NewBenchmarkRunner(cfg *Config) *BenchmarkRunner {
	r := &BenchmarkRunner{Config: cfg}
	r.NewFactory = r.defaultFactory
	return r
}

func (r *BenchmarkRunner) defaultFactory(transport string) (client.Factory, error) {
	opts := client.Options{
		Timeout:     r.Config.Timeout(),
		Compression: r.Config.Compression,
		Insecure:    r.Config.Insecure,
	}
	switch transport {
	case client.TransportHTTP:
		opts.Addr = r.Config.HTTPAddr
	case client.TransportQUIC:
		opts.Addr = r.Config.QUICAddr
	}
	return client.NewFactory(transport, opts)
}

func (r *BenchmarkRunner) transports() []string {
	var out []string
	if r.Config.HTTP {
		out = append(out, client.TransportHTTP)
	}
	if r.Config.QUIC {
		out = append(out, client.TransportQUIC)
	}
	return out
}

// Run executes all passes and returns the summaries of the ones that
// succeeded. A failed pass is logged and does not stop the remaining ones;
// the returned error joins every failure.
func (r *BenchmarkRunner) Run(ctx context.Context) ([]Summary, error) {
	if err := r.Config.Validate(); err != nil {
		return nil, err
	}

	var summaries []Summary
	var errs []error
	for _, transport := range r.transports() {
		factory, err := r.NewFactory(transport)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, kind := range r.Config.Kinds() {
			if ctx.Err() != nil {
				return summaries, errors.Join(append(errs, ctx.Err())...)
			}
			s, err := r.RunPass(ctx, transport, kind, factory)
			if err != nil {
				util.Error("[%s] %s failed: %v", transport, kind, err)
				errs = append(errs, fmt.Errorf("%s %s: %w", transport, kind, err))
				continue
			}
			util.Info("%s", s)
			util.Info("%s", s.Percentiles())
			summaries = append(summaries, s)
		}
	}
	return summaries, errors.Join(errs...)
}

// RunPass initializes the server if the kind sends, runs its workers and
// aggregates their results. The first worker error cancels the others.
func (r *BenchmarkRunner) RunPass(ctx context.Context, transport string, kind Kind, factory client.Factory) (Summary, error) {
	cfg := r.Config
	if kind.sends() {
		in := &Initializer{Config: cfg, Factory: factory}
		if err := in.Init(ctx); err != nil {
			return Summary{}, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		results  []*WorkerResult
		firstErr error
	)
	launch := func(run func(context.Context) (*WorkerResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := run(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				return
			}
			results = append(results, res)
		}()
	}

	targets := cfg.Targets()
	if kind.sends() {
		for p := 0; p < cfg.Producers; p++ {
			launch((&producer{id: p, cfg: cfg, targets: targets, factory: factory}).run)
		}
	}
	if kind.polls() {
		expected := cfg.Expected()
		for c := 0; c < cfg.Consumers; c++ {
			launch((&consumer{
				id:       c,
				cfg:      cfg,
				targets:  consumerTargets(targets, c, cfg.Consumers),
				expected: expected,
				factory:  factory,
				follow:   kind == KindSendAndPollMessages,
			}).run)
		}
	}
	wg.Wait()

	if firstErr != nil {
		return Summary{}, firstErr
	}
	return Aggregate(transport, kind, cfg.TotalMessages(), results), nil
}
