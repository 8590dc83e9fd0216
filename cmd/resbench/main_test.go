package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/resrepo/policy/lru"
	"github.com/IvanBrykalov/resrepo/repository"
	"github.com/IvanBrykalov/resrepo/weight"
)

func smallWorkload() workloadOptions {
	return workloadOptions{
		Workers:     8,
		Duration:    300 * time.Millisecond,
		Keys:        64,
		ZipfS:       1.2,
		ZipfV:       1,
		Seed:        42,
		GetPct:      80,
		RemovePct:   10,
		Hold:        100 * time.Microsecond,
		Latency:     time.Millisecond,
		FailRate:    0.05,
		MissingRate: 0.05,
		MaxFetches:  4,
		MinSize:     1 * weight.MiB,
		MaxSize:     8 * weight.MiB,
	}
}

func TestWorkload_DisposesEverything(t *testing.T) {
	wl := smallWorkload()
	require.NoError(t, wl.validate())

	var tl tally
	src := newArchiveSource(wl, &tl)
	repo, err := repository.New(repository.Options[string, *archive, weight.Space]{
		Provider: src,
		Weigher:  archiveWeight,
		Policy:   lru.New[string, *archive, weight.Space](48*weight.MiB, 32*weight.MiB),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	res, err := runWorkload(context.Background(), repo, src, wl)
	require.NoError(t, err)
	assert.Positive(t, res.Ops)
	assert.Positive(t, res.Found)
	assert.Zero(t, res.Errors)

	require.NoError(t, repo.Close())
	assert.NoError(t, verify(repo, &tl))
	assert.Positive(t, tl.created.Load())
}

func TestArchiveSource_SizeIsStable(t *testing.T) {
	wl := smallWorkload()
	src := newArchiveSource(wl, &tally{})

	a, b := src.sizeOf("plugin-7"), src.sizeOf("plugin-7")
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a, wl.MinSize)
	assert.Less(t, a, wl.MaxSize)
}

func TestArchiveSource_HonoursCancellation(t *testing.T) {
	wl := smallWorkload()
	wl.Latency = time.Hour
	src := newArchiveSource(wl, &tally{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := src.Provide(ctx, "plugin-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkloadOptions_Validate(t *testing.T) {
	for name, mutate := range map[string]func(*workloadOptions){
		"no workers":     func(o *workloadOptions) { o.Workers = 0 },
		"tiny keyspace":  func(o *workloadOptions) { o.Keys = 1 },
		"flat zipf":      func(o *workloadOptions) { o.ZipfS = 1 },
		"mix over 100":   func(o *workloadOptions) { o.GetPct, o.RemovePct = 90, 20 },
		"rates over one": func(o *workloadOptions) { o.FailRate, o.MissingRate = 0.6, 0.6 },
		"no fetches":     func(o *workloadOptions) { o.MaxFetches = 0 },
		"inverted sizes": func(o *workloadOptions) { o.MinSize, o.MaxSize = 2, 1 },
	} {
		t.Run(name, func(t *testing.T) {
			o := smallWorkload()
			mutate(&o)
			assert.Error(t, o.validate())
		})
	}
}
