package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/vietddude/txgate/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    200 * time.Millisecond,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle an error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionRetry:
		return "retry"
	case ActionFailover:
		return "failover"
	case ActionFatal:
		return "fatal"
	}
	return "unknown"
}

// ClassifyError determines the action for a given read-call error.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry // Should not happen
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	// Provider is backing off: hand the call back instead of hammering it.
	if errors.Is(err, provider.ErrThrottled) {
		return ActionFailover
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case provider.CodeParseError, provider.CodeInvalidRequest,
			provider.CodeMethodNotFound, provider.CodeInvalidParams:
			return ActionFatal
		case provider.CodeNodeUnhealthy:
			return ActionRetry
		}
		msg := strings.ToLower(rpcErr.Message)
		if strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") {
			return ActionFailover
		}
		return ActionRetry
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusTooManyRequests, httpErr.StatusCode == http.StatusForbidden,
			httpErr.StatusCode == http.StatusUnauthorized:
			return ActionFailover
		case httpErr.StatusCode >= 500:
			return ActionRetry
		default:
			return ActionFatal
		}
	}

	// Network, decode and everything else
	return ActionRetry
}

// CallWithRetry executes an idempotent RPC call with exponential backoff.
// Only errors classified as ActionRetry are retried.
func CallWithRetry(
	ctx context.Context,
	p provider.Provider,
	method string,
	params []any,
	out any,
	config RetryConfig,
) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	attempts := 0
	op := func() error {
		attempts++
		err := p.Call(ctx, method, params, out)
		if err == nil {
			return nil
		}
		if ClassifyError(err) != ActionRetry {
			return backoff.Permanent(err)
		}
		return err
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(newBackOff(config), uint64(config.MaxAttempts-1)), ctx))
	if err != nil && attempts == config.MaxAttempts && ClassifyError(err) == ActionRetry {
		return fmt.Errorf("failed after %d attempts: %w", attempts, err)
	}
	return err
}

// CallWithFailover runs CallWithRetry on the router's pick and moves to another
// endpoint when the error calls for failover or retries are exhausted.
func CallWithFailover(
	ctx context.Context,
	r *Router,
	method string,
	params []any,
	out any,
	config RetryConfig,
) error {
	tried := make(map[string]bool)
	var lastErr error
	exclude := ""

	for range max(1, len(r.All())) {
		p, err := r.PickExcept(exclude)
		if err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}
		if tried[p.GetName()] {
			break
		}
		tried[p.GetName()] = true

		start := time.Now()
		err = CallWithRetry(ctx, p, method, params, out, config)
		if err == nil {
			r.RecordSuccess(p.GetName(), time.Since(start))
			return nil
		}
		lastErr = err

		if ClassifyError(err) == ActionFatal {
			return err
		}
		r.RecordFailure(p.GetName())
		exclude = p.GetName()
	}

	return lastErr
}

func newBackOff(config RetryConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = config.InitialDelay
	b.MaxInterval = config.MaxDelay
	b.Multiplier = config.BackoffMultiple
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
