// Command resbench drives a repository of synthetic plugin archives with a
// mixed Get/Add/Remove workload and reports hit rate, disposals and weight
// accounting. Settings come from an optional YAML/JSON file, which is
// watched for limit and log level changes, and from flags.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/IvanBrykalov/resrepo/config"
	pmet "github.com/IvanBrykalov/resrepo/metrics/prom"
	"github.com/IvanBrykalov/resrepo/policy"
	"github.com/IvanBrykalov/resrepo/policy/lru"
	"github.com/IvanBrykalov/resrepo/policy/twoq"
	"github.com/IvanBrykalov/resrepo/repository"
	"github.com/IvanBrykalov/resrepo/weight"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "resbench:", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "resbench",
		Usage: "synthetic workload against a weight-bounded resource repository",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML or JSON settings file (watched for changes)"},
			&cli.StringFlag{Name: "max-weight", Usage: "eviction ceiling, overrides the file"},
			&cli.StringFlag{Name: "policy", Usage: "lru | 2q, overrides the file"},
			&cli.IntFlag{Name: "shards", Usage: "key table shards (0 = auto), overrides the file"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics at addr, overrides the file"},

			&cli.IntFlag{Name: "workers", Value: 2 * runtime.GOMAXPROCS(0), Usage: "worker goroutines"},
			&cli.DurationFlag{Name: "duration", Value: 10 * time.Second, Usage: "run time"},
			&cli.IntFlag{Name: "keys", Value: 10_000, Usage: "keyspace size"},
			&cli.FloatFlag{Name: "zipf-s", Value: 1.1, Usage: "Zipf s > 1 (skew)"},
			&cli.FloatFlag{Name: "zipf-v", Value: 1.0, Usage: "Zipf v >= 1"},
			&cli.Int64Flag{Name: "seed", Value: time.Now().UnixNano(), Usage: "random seed"},

			&cli.IntFlag{Name: "gets", Value: 90, Usage: "percentage of Get operations"},
			&cli.IntFlag{Name: "removes", Value: 5, Usage: "percentage of Remove operations (rest are Add)"},
			&cli.DurationFlag{Name: "hold", Value: 0, Usage: "how long a Get keeps its lock"},

			&cli.DurationFlag{Name: "latency", Value: 2 * time.Millisecond, Usage: "simulated download time"},
			&cli.FloatFlag{Name: "fail-rate", Value: 0.01, Usage: "fraction of downloads that fail"},
			&cli.FloatFlag{Name: "missing-rate", Value: 0.01, Usage: "fraction of keys reported as not found"},
			&cli.IntFlag{Name: "max-fetches", Value: 64, Usage: "concurrent downloads"},
			&cli.StringFlag{Name: "min-size", Value: "1MiB", Usage: "smallest archive"},
			&cli.StringFlag{Name: "max-size", Value: "64MiB", Usage: "largest archive"},
		},
		Action: run,
	}
}

// limiter is implemented by the bundled eviction policies.
type limiter interface {
	SetLimits(max, low weight.Space)
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	wl, err := workloadFromFlags(cmd)
	if err != nil {
		return err
	}

	var level slog.LevelVar
	log := cfg.NewLogger(os.Stderr, &level)

	max, low, err := cfg.Limits()
	if err != nil {
		return err
	}
	pol, lim := newPolicy(cfg, max, low)

	reg := prometheus.NewRegistry()
	metrics := pmet.New(reg, "resrepo", "bench", nil)

	var t tally
	src := newArchiveSource(wl, &t)
	repo, err := repository.New(repository.Options[string, *archive, weight.Space]{
		Provider: src,
		Weigher:  archiveWeight,
		Policy:   pol,
		Shards:   cfg.Shards,
		Metrics:  metrics,
		Logger:   log,
		Clock:    repository.CachedClock{},
	})
	if err != nil {
		return err
	}

	if path := cmd.String("config"); path != "" {
		w, err := config.Watch(path, time.Second, func(next config.Config) {
			applyReload(log, cfg, next, lim, &level)
		}, func(err error) {
			log.Warn("config reload rejected", slog.Any("err", err))
		})
		if err != nil {
			return err
		}
		defer func() { _ = w.Stop() }()
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("serving metrics", slog.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", slog.Any("err", err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	log.Info("starting workload",
		slog.String("policy", cfg.Policy),
		slog.String("max_weight", max.String()),
		slog.String("low_weight", low.String()),
		slog.Int("workers", wl.Workers),
		slog.Duration("duration", wl.Duration),
		slog.Int64("seed", wl.Seed))

	res, err := runWorkload(ctx, repo, src, wl)
	if err != nil {
		return err
	}

	before := repo.TotalWeight()
	stats := repo.Stats()
	if err := repo.Close(); err != nil {
		return err
	}

	report(res, stats, before)
	return verify(repo, &t)
}

func loadConfig(cmd *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := cmd.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Config{}, err
		}
	}
	if cmd.IsSet("max-weight") {
		cfg.MaxWeight = cmd.String("max-weight")
	}
	if cmd.IsSet("policy") {
		cfg.Policy = cmd.String("policy")
	}
	if cmd.IsSet("shards") {
		cfg.Shards = int(cmd.Int("shards"))
	}
	if cmd.IsSet("metrics-addr") {
		cfg.MetricsAddr = cmd.String("metrics-addr")
	}
	return cfg, cfg.Validate()
}

func workloadFromFlags(cmd *cli.Command) (workloadOptions, error) {
	minSize, err := weight.ParseSpace(cmd.String("min-size"))
	if err != nil {
		return workloadOptions{}, fmt.Errorf("min-size: %w", err)
	}
	maxSize, err := weight.ParseSpace(cmd.String("max-size"))
	if err != nil {
		return workloadOptions{}, fmt.Errorf("max-size: %w", err)
	}
	wl := workloadOptions{
		Workers:     int(cmd.Int("workers")),
		Duration:    cmd.Duration("duration"),
		Keys:        int(cmd.Int("keys")),
		ZipfS:       cmd.Float("zipf-s"),
		ZipfV:       cmd.Float("zipf-v"),
		Seed:        cmd.Int64("seed"),
		GetPct:      int(cmd.Int("gets")),
		RemovePct:   int(cmd.Int("removes")),
		Hold:        cmd.Duration("hold"),
		Latency:     cmd.Duration("latency"),
		FailRate:    cmd.Float("fail-rate"),
		MissingRate: cmd.Float("missing-rate"),
		MaxFetches:  int(cmd.Int("max-fetches")),
		MinSize:     minSize,
		MaxSize:     maxSize,
	}
	return wl, wl.validate()
}

func (o workloadOptions) validate() error {
	switch {
	case o.Workers < 1:
		return errors.New("workers must be positive")
	case o.Keys < 2:
		return errors.New("keys must be at least 2")
	case o.ZipfS <= 1 || o.ZipfV < 1:
		return errors.New("zipf-s must be > 1 and zipf-v >= 1")
	case o.GetPct < 0 || o.RemovePct < 0 || o.GetPct+o.RemovePct > 100:
		return errors.New("gets and removes must be percentages summing to at most 100")
	case o.FailRate < 0 || o.MissingRate < 0 || o.FailRate+o.MissingRate > 1:
		return errors.New("fail-rate and missing-rate must be fractions summing to at most 1")
	case o.MaxFetches < 1:
		return errors.New("max-fetches must be positive")
	case o.MinSize <= 0 || o.MaxSize < o.MinSize:
		return errors.New("sizes must satisfy 0 < min-size <= max-size")
	}
	return nil
}

func newPolicy(cfg config.Config, max, low weight.Space) (policy.EvictionPolicy[string, *archive, weight.Space], limiter) {
	if cfg.Policy == config.Policy2Q {
		p := twoq.New[string, *archive, weight.Space](max, low, cfg.Ghosts)
		return p, p
	}
	p := lru.New[string, *archive, weight.Space](max, low)
	return p, p
}

// applyReload applies the settings that can change on a live repository.
func applyReload(log *slog.Logger, cur, next config.Config, lim limiter, level *slog.LevelVar) {
	max, low, err := next.Limits()
	if err != nil {
		log.Warn("config reload rejected", slog.Any("err", err))
		return
	}
	lim.SetLimits(max, low)
	if l, err := next.Level(); err == nil {
		level.Set(l)
	}
	if next.Policy != cur.Policy || next.Shards != cur.Shards || next.MetricsAddr != cur.MetricsAddr {
		log.Warn("policy, shards and metrics_addr changes need a restart")
	}
	log.Info("config reloaded", slog.String("max_weight", max.String()), slog.String("low_weight", low.String()))
}

func report(r workloadResult, s repository.Stats, last weight.Space) {
	hitRate := 0.0
	if s.Hits+s.Misses > 0 {
		hitRate = float64(s.Hits) / float64(s.Hits+s.Misses) * 100
	}
	fmt.Printf("ops=%d (%.0f ops/s) in %v\n", r.Ops, float64(r.Ops)/r.Elapsed.Seconds(), r.Elapsed.Round(time.Millisecond))
	fmt.Printf("gets=%d found=%d not_found=%d failed=%d errors=%d\n", r.Gets, r.Found, r.NotFound, r.Failed, r.Errors)
	fmt.Printf("adds=%d rejected=%d removes=%d immediate=%d\n", r.Adds, r.Rejected, r.Removes, r.Immediate)
	fmt.Printf("hits=%d misses=%d hit-rate=%.2f%% fetches=%d\n", s.Hits, s.Misses, hitRate, s.Fetches)
	fmt.Printf("evictions=%d disposals=%d cleanup-passes=%d skipped=%d\n", s.Evictions, s.Disposals, s.CleanupPasses, s.SkippedCleanups)
	fmt.Printf("entries=%d weight=%s (before close)\n", s.Entries, last)
}

// verify checks the accounting after Close: every archive ever created was
// disposed exactly once and nothing is left stored.
func verify(repo archiveRepo, t *tally) error {
	created, disposed := t.created.Load(), t.disposed.Load()
	if n := t.doubleDisposals.Load(); n > 0 {
		return fmt.Errorf("%d archives disposed more than once", n)
	}
	if created != disposed {
		return fmt.Errorf("created %d archives but disposed %d", created, disposed)
	}
	if repo.Len() != 0 || repo.TotalWeight() != 0 {
		return fmt.Errorf("repository not empty after close: %d entries, %s", repo.Len(), repo.TotalWeight())
	}
	fmt.Printf("consistency: %d archives created and disposed once\n", created)
	return nil
}
