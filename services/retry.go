package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/yeremiapane/restaurant-feedback/metrics"
)

// RetryPolicy bounds an exponential backoff loop.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultTransactionRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 20 * time.Millisecond,
		MaxInterval:     500 * time.Millisecond,
	}
}

func DefaultSideChannelRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// MySQL: 1213 deadlock found, 1205 lock wait timeout.
var retryableMySQLErrors = map[uint16]bool{1213: true, 1205: true}

func isRetryableTxError(err error) bool {
	if errors.Is(err, ErrConcurrentUpdate) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return retryableMySQLErrors[mysqlErr.Number]
	}
	return false
}

// retryTransaction re-runs fn while it fails with a conflict. Any other error
// stops the loop immediately. Running out of attempts yields ErrTransactionRetryExhausted.
func retryTransaction(ctx context.Context, policy RetryPolicy, fn func() error) error {
	attempts := 0
	operation := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if isRetryableTxError(err) {
			metrics.RecordRatingConflict()
			return err
		}
		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, policy.backOff(ctx))
	if err != nil && isRetryableTxError(err) {
		return fmt.Errorf("%w after %d attempts: %v", ErrTransactionRetryExhausted, attempts, err)
	}
	return err
}
