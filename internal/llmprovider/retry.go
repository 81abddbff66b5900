package llmprovider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// RetryPolicy is the capped exponential backoff shared by every provider
// adapter's transport. Retries apply only to transient errors as classified
// by ClassifyTransportError; tool errors and protocol errors are never
// retried here.
type RetryPolicy struct {
	BaseDelay  time.Duration
	Factor     float64
	CapDelay   time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy matches the documented base 500ms / factor 2 / cap 8s /
// max 3 attempts policy for provider transport errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{BaseDelay: 500 * time.Millisecond, Factor: 2, CapDelay: 8 * time.Second, MaxAttempts: 3}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt; i++ {
		d = time.Duration(float64(d) * p.Factor)
		if d > p.CapDelay {
			return p.CapDelay
		}
	}
	return d
}

// TransientKind classifies whether and why a transport error may be retried.
type TransientKind int

const (
	NotTransient TransientKind = iota
	TransientConnection
	TransientServerError
	TransientRateLimit
)

// ClassifyTransportError centralizes the transient-error decision so it can
// be unit-tested against synthetic errors independent of any real HTTP
// round trip, per the retry policy's own design note.
func ClassifyTransportError(err error, statusCode int) TransientKind {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return TransientConnection
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return TransientConnection
		}
		return NotTransient
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return TransientRateLimit
	case statusCode >= 500:
		return TransientServerError
	default:
		return NotTransient
	}
}

// Do runs attempt with RetryPolicy-governed backoff, retrying only while
// classify reports a transient kind and attempts remain. classify receives
// the error attempt returned (nil on success) and is expected to inspect
// any status code the caller closed over.
func Do(ctx context.Context, policy RetryPolicy, classify func(err error) TransientKind, attempt func() error) error {
	var lastErr error
	for i := 0; i < policy.MaxAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.delay(i - 1)):
			}
		}
		lastErr = attempt()
		if lastErr == nil {
			return nil
		}
		if classify(lastErr) == NotTransient {
			return lastErr
		}
	}
	return lastErr
}
