// Package storecall bounds every backing-store call with a timeout and maps
// transient failures onto domain.ErrUnavailable.
package storecall

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"allhall/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
	"go.mongodb.org/mongo-driver/mongo"
)

// Policy controls timeouts and retries for store calls.
type Policy struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
}

// DefaultPolicy is used when no configuration is supplied.
var DefaultPolicy = Policy{
	Timeout:     5 * time.Second,
	MaxAttempts: 3,
	BaseDelay:   100 * time.Millisecond,
}

// Classify wraps transient failures so that errors.Is(err, domain.ErrUnavailable) holds.
// Errors that already carry a domain kind are returned unchanged.
func Classify(err error) error {
	if err == nil || errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	if transient(err) {
		return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
	}
	return err
}

func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return true
		}
		return false
	}

	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// Once runs fn a single time under the policy timeout. Use it for
// non-idempotent writes such as checkout.
func (p Policy) Once(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := p.withTimeout(ctx)
	defer cancel()
	return Classify(fn(ctx))
}

// Do runs fn under the policy timeout and retries it with exponential
// backoff while it fails with an Unavailable error.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy.BaseDelay
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := p.Once(ctx, fn)
		if errors.Is(err, domain.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p Policy) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
