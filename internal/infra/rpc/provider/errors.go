package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Well-known JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602

	// Ledger specific server errors.
	CodePreflightFailure      = -32002
	CodeSignatureVerification = -32003
	CodeNodeUnhealthy         = -32005
)

// ErrThrottled is returned without sending anything when the provider is backing off.
var ErrThrottled = errors.New("provider throttled")

// RPCError is the error object of a JSON-RPC response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// HTTPError is a non-200 HTTP response.
type HTTPError struct {
	StatusCode int
	Body       string
	RetryAfter string
}

func (e *HTTPError) Error() string {
	switch e.StatusCode {
	case 429:
		return fmt.Sprintf("rate limited (429), retry after: %s", e.RetryAfter)
	case 403:
		return "ip blocked (403)"
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// ThrottleError wraps ErrThrottled with the remaining backoff.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("%s, retry after: %v", ErrThrottled, e.RetryAfter)
}

func (e *ThrottleError) Unwrap() error {
	return ErrThrottled
}
