package main

import (
	"context"

	"go.uber.org/zap"

	"sqlconv/internal/metrics"
	"sqlconv/internal/metrics/datadog"
)

// setupMetrics installs the configured backend and returns its closer.
// A backend that cannot start is logged and replaced by the no-op backend;
// metrics never fail a conversion.
func (a *app) setupMetrics(ctx context.Context) func() {
	if ctx == nil {
		ctx = context.Background()
	}
	mc := a.cfg.Metrics

	switch mc.Backend {
	case "datadog":
		// Buffers samples and submits them on a ticker, plus one final
		// submission on Close.
		tags := datadog.ParseTagsCSV(mc.Tags)
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName:    mc.Job,
			Tags:       tags,
			FlushEvery: mc.FlushEvery,
		})
		if err != nil {
			a.log.Warn("metrics: datadog backend unavailable; using nop", zap.Error(err))
			return nil
		}
		a.log.Debug("metrics: datadog enabled", zap.String("job", mc.Job), zap.Strings("tags", tags))
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				a.log.Warn("metrics: datadog close/flush error", zap.Error(err))
			}
		}

	case "", "none":
		a.log.Debug("metrics: disabled")
		return nil

	default:
		a.log.Warn("metrics: unknown backend; metrics disabled", zap.String("backend", mc.Backend))
		return nil
	}
}
