package service

import (
	"context"
	"log/slog"

	"github.com/aussiebroadwan/crm/internal/auth/domain"
	"github.com/aussiebroadwan/crm/pkg/slogx"
)

// ActivitySink receives activity events. Implementations must not block the
// request for long; failures are theirs to handle.
type ActivitySink interface {
	Record(ctx context.Context, ev domain.ActivityEvent)
}

// LogActivity writes activity events as structured log lines under the
// "activity" group.
type LogActivity struct {
	Logger *slog.Logger
}

func (a LogActivity) Record(ctx context.Context, ev domain.ActivityEvent) {
	l := a.Logger
	if l == nil {
		l = slogx.FromContext(ctx)
	}

	attrs := []any{
		slog.String("type", string(ev.Type)),
		slog.String("tenant_id", ev.TenantID),
		slog.String("actor_id", ev.ActorID),
		slog.String("target_id", ev.TargetID),
		slog.Time("at", ev.At),
	}
	for k, v := range ev.Detail {
		attrs = append(attrs, slog.String(k, v))
	}
	l.InfoContext(ctx, "activity", slog.Group("activity", attrs...))
}

func record(ctx context.Context, sink ActivitySink, ev domain.ActivityEvent) {
	if sink == nil {
		return
	}
	sink.Record(ctx, ev)
}
