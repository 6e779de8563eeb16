package candidates

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// inBatches runs fn over items size at a time and waits for each batch before
// starting the next. Results are aligned to items. fn absorbs its own errors.
func inBatches[T, R any](ctx context.Context, items []T, size int, timeout time.Duration,
	fn func(ctx context.Context, item T) R,
) []R {
	out := make([]R, len(items))
	if size <= 0 {
		size = 1
	}
	for lo := 0; lo < len(items); lo += size {
		if ctx.Err() != nil {
			break
		}
		hi := min(lo+size, len(items))
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				cctx, cancel := ctx, context.CancelFunc(func() {})
				if timeout > 0 {
					cctx, cancel = context.WithTimeout(ctx, timeout)
				}
				defer cancel()
				out[i] = fn(cctx, items[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}
