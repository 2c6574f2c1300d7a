// Package monitoring watches the review, quarantine and correction
// backlogs and posts alerts to a webhook when they grow past thresholds.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/teamresolve/internal/config"
	"github.com/sells-group/teamresolve/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertReviewBacklog     AlertType = "review_backlog"
	AlertRiskyBacklog      AlertType = "risky_backlog"
	AlertQuarantineVolume  AlertType = "quarantine_volume"
	AlertCorrectionBacklog AlertType = "correction_backlog"
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	if t := a.cfg.ReviewBacklogThreshold; t > 0 && snap.ReviewPending > t {
		alerts = append(alerts, Alert{
			Type:     AlertReviewBacklog,
			Severity: "medium",
			Message:  fmt.Sprintf("%d review entries pending, threshold %d", snap.ReviewPending, t),
			Details: map[string]any{
				"pending":      snap.ReviewPending,
				"safe":         snap.ReviewSafe,
				"needs_review": snap.ReviewNeedsReview,
				"risky":        snap.ReviewRisky,
				"threshold":    t,
			},
			Timestamp: now,
		})
	}

	// Risky entries cannot be bulk approved, so they need a person.
	if t := a.cfg.RiskyBacklogThreshold; t > 0 && snap.ReviewRisky > t {
		alerts = append(alerts, Alert{
			Type:      AlertRiskyBacklog,
			Severity:  "high",
			Message:   fmt.Sprintf("%d risky review entries pending, threshold %d", snap.ReviewRisky, t),
			Details:   map[string]any{"risky": snap.ReviewRisky, "threshold": t},
			Timestamp: now,
		})
	}

	if t := a.cfg.QuarantineThreshold; t > 0 && snap.QuarantineTotal > t {
		details := map[string]any{"total": snap.QuarantineTotal, "threshold": t}
		for r, n := range snap.QuarantineByReason {
			details[string(r)] = n
		}
		alerts = append(alerts, Alert{
			Type:      AlertQuarantineVolume,
			Severity:  "medium",
			Message:   fmt.Sprintf("%d quarantined records, threshold %d", snap.QuarantineTotal, t),
			Details:   details,
			Timestamp: now,
		})
	}

	if t := a.cfg.CorrectionBacklogThreshold; t > 0 && snap.CorrectionsPending > t {
		alerts = append(alerts, Alert{
			Type:      AlertCorrectionBacklog,
			Severity:  "low",
			Message:   fmt.Sprintf("%d corrections awaiting approval, threshold %d", snap.CorrectionsPending, t),
			Details:   map[string]any{"pending": snap.CorrectionsPending, "threshold": t},
			Timestamp: now,
		})
	}

	return alerts
}

// Notification is the webhook body: every alert from one check.
type Notification struct {
	Source string  `json:"source"`
	Alerts []Alert `json:"alerts"`
}

// SendAlerts posts alerts to the webhook as one Notification and returns
// how many were delivered. With no webhook configured nothing is sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	payload, err := json.Marshal(Notification{Source: "teamresolve", Alerts: alerts})
	if err != nil {
		zap.L().Error("monitoring: marshal alerts", zap.Error(err))
		return 0
	}

	retry := a.retry
	retry.OnRetry = resilience.RetryLogger("monitoring.alerter", "webhook")
	if err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		return a.post(ctx, payload)
	}); err != nil {
		zap.L().Error("monitoring: deliver alerts",
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return 0
	}

	for _, alert := range alerts {
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return resilience.NewTransientError(eris.Errorf("monitoring: webhook status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
