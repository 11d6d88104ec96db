package service

import (
	"context"
	"errors"
	"time"

	"allhall/internal/audit"
	"allhall/internal/domain"
	"allhall/internal/metrics"
	"allhall/internal/realtime"
	"allhall/internal/storecall"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// EventPublisher is the outbound domain-event sink.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

// LiveHub notifies and serves live views.
type LiveHub interface {
	Notify(ctx context.Context, topics ...string)
	Subscribe(ctx context.Context, fetch realtime.FetchFunc, topics ...string) (*realtime.Subscription, error)
}

// SessionResolver reloads the current role behind a session.
type SessionResolver interface {
	ResolveSession(ctx context.Context, userID uuid.UUID, email string) (domain.Session, error)
}

// Deps are the collaborators shared by every domain service.
type Deps struct {
	Store     storecall.Policy
	Publisher EventPublisher
	Audit     audit.Log
	Live      LiveHub
	Logger    *zap.Logger
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

// read runs an idempotent store call with retries.
func (d Deps) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return d.observe(op, d.Store.Do(ctx, fn))
}

// write runs a store call exactly once.
func (d Deps) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return d.observe(op, d.Store.Once(ctx, fn))
}

func (d Deps) observe(op string, err error) error {
	if errors.Is(err, domain.ErrUnavailable) {
		metrics.StoreUnavailableTotal.WithLabelValues(op).Inc()
		d.Logger.Warn("Store unavailable", zap.String("operation", op), zap.Error(err))
	}
	return err
}

// publish sends an event. Failures never fail the calling operation.
func (d Deps) publish(ctx context.Context, key string, event any) {
	if d.Publisher == nil {
		return
	}
	if err := d.Publisher.PublishEvent(ctx, key, event); err != nil {
		d.Logger.Warn("Failed to publish event", zap.String("key", key), zap.Error(err))
	}
}

func (d Deps) record(ctx context.Context, entry *audit.Entry) {
	if d.Audit == nil {
		return
	}
	if err := d.Audit.Record(ctx, entry); err != nil {
		d.Logger.Warn("Failed to record audit entry",
			zap.String("action", entry.Action),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}

func (d Deps) notify(ctx context.Context, topics ...string) {
	if d.Live != nil {
		d.Live.Notify(ctx, topics...)
	}
}

func (d Deps) subscribe(ctx context.Context, topic string, fetch realtime.FetchFunc, more ...string) (*realtime.Subscription, error) {
	if d.Live == nil {
		return nil, domain.ErrUnavailable
	}
	return d.Live.Subscribe(ctx, fetch, append([]string{topic}, more...)...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
