package arbitrage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/oddsforge/betengine/pkg/bookmaker"
	"github.com/oddsforge/betengine/pkg/engine"
)

// Monitor re-checks an opportunity's validity at a fixed interval for a
// bounded duration before the caller commits to execution. It places
// nothing. Returns true when the opportunity stayed valid for the whole
// window, false as soon as it becomes invalid or the context is canceled.
func (e *Executor) Monitor(ctx context.Context, opp engine.ArbitrageOpportunity, clients map[string]bookmaker.Client, duration, interval time.Duration) bool {
	if interval <= 0 {
		interval = time.Second
	}
	if err := validate(opp, clients); err != nil {
		return false
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return true
		case <-ticker.C:
			if err := validate(opp, clients); err != nil {
				e.log.Info("opportunity no longer valid",
					zap.String("opportunity", opp.ID),
					zap.Error(err))
				return false
			}
		}
	}
}
