// Package realtime delivers live views: a subscriber receives the full current
// snapshot on subscribe and again after every change published for its topic.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"allhall/internal/domain"
	"allhall/internal/metrics"
	"allhall/internal/storecall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "allhall:live:"

// Topics shared by publishers and subscribers.
const (
	TopicCatalog    = "catalog"
	TopicModeration = "moderation"
)

func CartTopic(userID uuid.UUID) string { return "cart:" + userID.String() }
func OrdersTopic(userID uuid.UUID) string { return "orders:" + userID.String() }
func SellerTopic(userID uuid.UUID) string { return "seller:" + userID.String() }

// RoleTopic changes whenever userID's role does.
func RoleTopic(userID uuid.UUID) string { return "role:" + userID.String() }

// FetchFunc loads the current snapshot of a view.
type FetchFunc func(ctx context.Context) (any, error)

// Update is one delivery on a subscription.
type Update struct {
	Snapshot any
	Err      error
}

// Subscription is a live view handle. C is closed once the subscription ends.
type Subscription struct {
	C      <-chan Update
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the subscription and waits until its resources are released.
// It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.cancel()
	<-s.done
}

// Hub fans Redis pub/sub change notifications out to subscriptions.
type Hub struct {
	client *redis.Client
	logger *zap.Logger
	active atomic.Int64
}

func NewHub(client *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{client: client, logger: logger}
}

// Active is the number of subscriptions that still hold resources.
func (h *Hub) Active() int {
	return int(h.active.Load())
}

// Notify marks topics as changed. Failures are logged; live views are best-effort.
func (h *Hub) Notify(ctx context.Context, topics ...string) {
	for _, topic := range topics {
		if err := h.client.Publish(ctx, channelPrefix+topic, "changed").Err(); err != nil {
			h.logger.Warn("Failed to publish change notification",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}
}

// Subscribe opens a live view refreshed by changes on any of topics. The
// subscription ends when Cancel is called, ctx is done, or fetch is denied;
// a denial is delivered as the final update.
func (h *Hub) Subscribe(ctx context.Context, fetch FetchFunc, topics ...string) (*Subscription, error) {
	if len(topics) == 0 {
		return nil, errors.New("subscribe needs at least one topic")
	}
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = channelPrefix + topic
	}
	ps := h.client.Subscribe(ctx, channels...)
	for range channels {
		if _, err := ps.Receive(ctx); err != nil {
			ps.Close()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", strings.Join(topics, ","), storecall.Classify(err))
		}
	}
	changes := ps.Channel()

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan Update, 1)
	done := make(chan struct{})
	h.active.Add(1)
	metrics.LiveSubscriptions.Inc()

	go func() {
		defer close(done)
		defer metrics.LiveSubscriptions.Dec()
		defer h.active.Add(-1)
		defer close(out)
		defer ps.Close()

		if denied(deliver(subCtx, out, fetch)) {
			return
		}
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
				if denied(deliver(subCtx, out, fetch)) {
					return
				}
			}
		}
	}()

	return &Subscription{C: out, cancel: cancel, done: done}, nil
}

// deliver replaces any undelivered snapshot with the latest one, so slow
// consumers only ever see current state.
func deliver(ctx context.Context, out chan Update, fetch FetchFunc) error {
	snapshot, err := fetch(ctx)
	if ctx.Err() != nil {
		return nil
	}
	u := Update{Snapshot: snapshot, Err: err}
	select {
	case out <- u:
		return err
	default:
	}
	select {
	case <-out:
	default:
	}
	select {
	case out <- u:
	default:
	}
	return err
}

func denied(err error) bool {
	return errors.Is(err, domain.ErrPermissionDenied)
}
