package pipeline

import (
	"context"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"
)

type nextFunc = func() (string, error, bool)

// dispatchPool runs batchSize workers fed through a channel of the same
// capacity, so at most about 2×batchSize lines are in flight. The first unit
// error cancels the remaining workers and stops the reader.
func (r *run) dispatchPool(ctx context.Context, next nextFunc) error {
	g, gctx := errgroup.WithContext(ctx)
	lines := make(chan line, r.opts.batchSize)

	for i := 0; i < r.opts.batchSize; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case l, ok := <-lines:
					if !ok {
						return nil
					}
					if err := r.handle(l); err != nil {
						return err
					}
				}
			}
		})
	}

	readErr := r.feed(gctx, next, lines)
	close(lines)
	r.transition(StateDraining)
	werr := g.Wait()

	switch {
	case werr != nil && !isCanceled(werr):
		return werr
	case readErr != nil:
		return readErr
	default:
		return werr
	}
}

// feed pushes data lines into out until input ends, reading fails, or ctx is
// done. A stop caused by ctx is not an error here; the workers report it.
func (r *run) feed(ctx context.Context, next nextFunc, out chan<- line) error {
	for {
		l, ok, err := r.read(next)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		select {
		case out <- l:
		case <-ctx.Done():
			return nil
		}
	}
}

// dispatchBatches reads up to batchSize lines, runs each as its own unit and
// waits for the whole batch before reading on. Units never cancel siblings;
// the first unit error of a batch is returned.
func (r *run) dispatchBatches(ctx context.Context, next nextFunc) error {
	batch := make([]line, 0, r.opts.batchSize)
	for {
		var (
			eof bool
			err error
		)
		batch, eof, err = r.fill(next, batch[:0])
		if err != nil {
			return err
		}
		if eof {
			r.transition(StateDraining)
		}
		if err := r.settle(batch); err != nil {
			return err
		}
		if eof {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (r *run) fill(next nextFunc, batch []line) ([]line, bool, error) {
	for len(batch) < r.opts.batchSize {
		l, ok, err := r.read(next)
		if err != nil {
			return batch, false, err
		}
		if !ok {
			return batch, true, nil
		}
		batch = append(batch, l)
	}
	return batch, false, nil
}

func (r *run) settle(batch []line) error {
	if len(batch) == 0 {
		return nil
	}
	// A failed sink fails every later unit with the same error; report it once.
	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(len(batch))
	for _, l := range batch {
		p.Go(func() error { return r.handle(l) })
	}
	return p.Wait()
}
