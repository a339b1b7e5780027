package ygggo_sql

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy shapes the exponential backoff between connect attempts.
// The number of retries comes from Config.ConnectRetries; statements are
// never retried.
type RetryPolicy struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
	MaxElapsed  time.Duration // 0 means bounded only by the retry count
}

func (pol RetryPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if pol.BaseBackoff > 0 {
		b.InitialInterval = pol.BaseBackoff
	}
	if pol.MaxBackoff > 0 {
		b.MaxInterval = pol.MaxBackoff
	}
	if !pol.Jitter {
		b.RandomizationFactor = 0
	}
	b.MaxElapsedTime = pol.MaxElapsed
	b.Reset()
	return b
}

// retryConnect runs op once plus up to retries more times. Authentication
// failures stop the loop immediately.
func retryConnect(ctx context.Context, retries int, pol RetryPolicy, op func() error) error {
	if retries <= 0 {
		return op()
	}
	b := backoff.WithContext(backoff.WithMaxRetries(pol.newBackOff(), uint64(retries)), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && Classify(err) == ErrClassAuth {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}
