package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Amund211/deckcache/internal/logging"
	"github.com/Amund211/deckcache/internal/reporting"
)

const DefaultSweepInterval = 1 * time.Hour

// RunExpirySweeper removes expired records from the partition once immediately
// and then every interval, until ctx is done
func RunExpirySweeper(ctx context.Context, s Store, partition string, interval time.Duration, nowFunc func() time.Time) {
	sweep := func() {
		deleted, err := s.DeleteExpired(ctx, partition, nowFunc())
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reporting.Report(ctx, fmt.Errorf("failed to sweep expired records: %w", err), map[string]string{
				"partition": partition,
			})
			return
		}
		logging.FromContext(ctx).InfoContext(ctx, "Swept expired records", slog.String("partition", partition), slog.Int("deleted", deleted))
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep()
		}
	}
}
