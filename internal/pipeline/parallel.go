package pipeline

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner is anything that performs one OCR run; both Pipeline and
// CachedPipeline satisfy it.
type Runner interface {
	Run(ctx context.Context, img image.Image, opts Options) (*Result, error)
}

// ParallelConfig bounds RunMany.
type ParallelConfig struct {
	MaxWorkers int              // 0 means runtime.NumCPU()
	Progress   ProgressCallback // optional
}

// RunMany runs r over every image with at most MaxWorkers runs in flight
// and returns the results in input order. The first failure cancels the
// remaining runs.
func RunMany(ctx context.Context, r Runner, images []image.Image, opts Options, cfg ParallelConfig) ([]*Result, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	progress := cfg.Progress
	if progress == nil {
		progress = NoOpProgressCallback{}
	}

	results := make([]*Result, len(images))
	var (
		mu   sync.Mutex
		done int
	)
	progress.OnStart(len(images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, img := range images {
		g.Go(func() error {
			res, err := r.Run(gctx, img, opts)
			mu.Lock()
			defer mu.Unlock()
			done++
			if err != nil {
				progress.OnError(i, err)
				return err
			}
			results[i] = res
			progress.OnProgress(done, len(images))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	progress.OnComplete()
	return results, nil
}
