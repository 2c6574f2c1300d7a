package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
)

const defaultCheckInterval = 5 * time.Minute

// Checker polls the backlogs on an interval and alerts on breaches.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	interval  time.Duration
	log       *zap.Logger
}

// NewChecker builds a Checker. A non-positive check interval falls back to
// five minutes.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	interval := time.Duration(cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Checker{
		collector: collector,
		alerter:   alerter,
		interval:  interval,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

// Run checks once per interval until ctx is done.
func (c *Checker) Run(ctx context.Context) {
	c.log.Info("backlog checker started", zap.Duration("interval", c.interval))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("backlog checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot, evaluates it and posts any alerts. It returns
// how many alerts fired.
func (c *Checker) Check(ctx context.Context) int {
	snap, err := c.collector.Collect(ctx)
	if err != nil {
		c.log.Error("collect backlog snapshot", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("backlogs within thresholds",
			zap.Int("review_pending", snap.ReviewPending),
			zap.Int("quarantine_total", snap.QuarantineTotal),
		)
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Info("backlog alerts fired",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
	return len(alerts)
}
