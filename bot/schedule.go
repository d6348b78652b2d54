package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// Schedule spawns task to run at every tick of a five-field cron expression.
func (b *Bot[S]) Schedule(expr string, task Task) error {
	gron := gronx.New()
	if !gron.IsValid(expr) {
		return fmt.Errorf("invalid cron expression %q", expr)
	}
	b.Spawn(func(ctx context.Context) {
		for {
			next, err := gronx.NextTickAfter(expr, time.Now(), false)
			if err != nil {
				b.logger.Error("schedule stopped", "cron", expr, "err", err)
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				task(ctx)
			}
		}
	})
	return nil
}
