// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StartJobsManagerSizeUpdater periodically samples the jobs manager and
// updates the JobsManagerSize gauge on a fixed-interval polling loop.
func StartJobsManagerSizeUpdater(ctx context.Context, interval time.Duration, size func(context.Context) (int, error), log *zap.Logger) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := size(ctx)
				if err != nil {
					log.Debug("jobs manager size poll error", Err(err))
					continue
				}
				JobsManagerSize.Set(float64(n))
			}
		}
	}()
}
