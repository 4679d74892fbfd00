package scheduler

import (
	"context"
	"log/slog"

	"keyrelay/internal/domain"
	"keyrelay/internal/llm"
)

// StatusTaskID identifies the pool status report task.
const StatusTaskID = "pool-status"

// StatusSource reports the current key pool.
type StatusSource interface {
	Status() llm.PoolStatus
}

// StatusReport returns a task that logs the pool's health on spec: info
// when every key is usable, warn when degraded, error when none remain.
func StatusReport(spec string, src StatusSource, logger *slog.Logger) Task {
	if logger == nil {
		logger = slog.Default()
	}
	return Task{
		ID:   StatusTaskID,
		Spec: spec,
		Run: func(ctx context.Context) error {
			st := src.Status()
			var quarantined []string
			for _, k := range st.Keys {
				if k.Bad {
					quarantined = append(quarantined, k.Masked)
				}
			}
			attrs := []any{"status", st.Health, "total", st.Total, "available", st.Available}
			switch st.Health {
			case domain.HealthOK:
				logger.InfoContext(ctx, "key pool status", attrs...)
			case domain.HealthDegraded:
				logger.WarnContext(ctx, "key pool degraded", append(attrs, "quarantined", quarantined)...)
			default:
				logger.ErrorContext(ctx, "key pool unavailable", append(attrs, "quarantined", quarantined)...)
			}
			return nil
		},
	}
}
