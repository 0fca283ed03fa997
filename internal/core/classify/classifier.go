// Package classify maps raw submission failures onto the error taxonomy.
//
// Certainty is never inferred from the absence of an error: only failures whose
// origin proves the ledger never accepted the bytes are NotSubmitted. Everything
// else that happened after bytes may have left this process is UnknownResolvable.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/vietddude/txgate/internal/core/domain"
	"github.com/vietddude/txgate/internal/infra/chain"
	"github.com/vietddude/txgate/internal/infra/rpc/provider"
)

// ErrSignatureVerification marks a signature that failed local verification before submission.
var ErrSignatureVerification = errors.New("signature verification failed")

// Expiry is the resolution window attached to ambiguous outcomes.
type Expiry struct {
	Reference string
	Slot      uint64
}

// ExpiryOf returns the window of a compiled transaction.
func ExpiryOf(tx *domain.Transaction) Expiry {
	return Expiry{Reference: tx.ExpiryReference, Slot: tx.ExpirySlot}
}

// Retryable reports the default retry decision for a code (the re-signing test).
func Retryable(code domain.ErrorCode) bool {
	switch code {
	case domain.CodeInsufficientFunds,
		domain.CodeNetworkError,
		domain.CodeTimeout,
		domain.CodeConnectionFailed,
		domain.CodeRPCError:
		return true
	}
	return false
}

func build(code domain.ErrorCode, certainty domain.Certainty, msg string, details map[string]any, expiry Expiry) *domain.ClassifiedError {
	return buildRetry(code, certainty, Retryable(code), msg, details, expiry)
}

func buildRetry(
	code domain.ErrorCode,
	certainty domain.Certainty,
	retryable bool,
	msg string,
	details map[string]any,
	expiry Expiry,
) *domain.ClassifiedError {
	ce := &domain.ClassifiedError{
		Code:      code,
		Message:   msg,
		Details:   details,
		Retryable: retryable,
		Certainty: certainty,
	}
	if certainty != domain.CertaintyNotSubmitted {
		ce.ExpiryReference = expiry.Reference
		ce.ExpirySlot = expiry.Slot
	}
	return ce
}

// Classify turns a failed submission call into a ClassifiedError.
func Classify(err error, expiry Expiry) *domain.ClassifiedError {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrSignatureVerification) {
		return build(domain.CodeInvalidSignature, domain.CertaintyNotSubmitted, err.Error(),
			map[string]any{"stage": "local_verification"}, expiry)
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		return classifyRPC(rpcErr, expiry)
	}

	if errors.Is(err, chain.ErrNotSent) {
		return build(domain.CodeRPCError, domain.CertaintyNotSubmitted, err.Error(),
			map[string]any{"stage": "not_sent"}, expiry)
	}

	// The provider refused to send while backing off, so nothing left this process.
	var throttle *provider.ThrottleError
	if errors.As(err, &throttle) {
		return build(domain.CodeRPCError, domain.CertaintyNotSubmitted, err.Error(),
			map[string]any{"stage": "throttled", "retry_after_ms": throttle.RetryAfter.Milliseconds()}, expiry)
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		return build(domain.CodeRPCError, domain.CertaintyUnknownResolvable, err.Error(),
			map[string]any{"http_status": httpErr.StatusCode, "status_text": http.StatusText(httpErr.StatusCode)}, expiry)
	}

	if isConnectFailure(err) {
		return build(domain.CodeConnectionFailed, domain.CertaintyUnknownResolvable, err.Error(),
			map[string]any{"op": "dial"}, expiry)
	}

	if isTimeout(err) {
		return build(domain.CodeTimeout, domain.CertaintyUnknownResolvable, err.Error(),
			map[string]any{"is_timeout": true}, expiry)
	}

	if isNetwork(err) {
		return build(domain.CodeNetworkError, domain.CertaintyUnknownResolvable, err.Error(),
			map[string]any{"is_timeout": false}, expiry)
	}

	return build(domain.CodeRPCError, domain.CertaintyUnknownResolvable, err.Error(),
		map[string]any{"stage": "unclassified"}, expiry)
}

func classifyRPC(e *provider.RPCError, expiry Expiry) *domain.ClassifiedError {
	details := map[string]any{"rpc_code": e.Code}

	switch e.Code {
	case provider.CodeParseError, provider.CodeInvalidRequest, provider.CodeMethodNotFound:
		return buildRetry(domain.CodeRPCError, domain.CertaintyNotSubmitted, false, e.Message, details, expiry)

	case provider.CodeInvalidParams:
		return build(domain.CodeMalformedInstruction, domain.CertaintyNotSubmitted, e.Message, details, expiry)

	case provider.CodeSignatureVerification, codeSignatureLengthMismatch:
		return build(domain.CodeInvalidSignature, domain.CertaintyNotSubmitted, e.Message, details, expiry)

	case provider.CodePreflightFailure:
		var data struct {
			Err           json.RawMessage `json:"err"`
			Logs          []string        `json:"logs"`
			UnitsConsumed *uint64         `json:"unitsConsumed"`
		}
		_ = json.Unmarshal(e.Data, &data)
		details["stage"] = "preflight"
		if data.Logs != nil {
			details["logs"] = data.Logs
		}
		if data.UnitsConsumed != nil {
			details["units_consumed"] = *data.UnitsConsumed
		}

		te, ok := ParseTransactionError(data.Err)
		if !ok {
			return build(domain.CodeMalformedInstruction, domain.CertaintyNotSubmitted, e.Message, details, expiry)
		}
		for k, v := range te.details() {
			details[k] = v
		}
		return build(te.Code(), domain.CertaintyNotSubmitted, te.Message(), details, expiry)

	case provider.CodeNodeUnhealthy:
		var data struct {
			NumSlotsBehind *uint64 `json:"numSlotsBehind"`
		}
		if json.Unmarshal(e.Data, &data) == nil && data.NumSlotsBehind != nil {
			details["slots_behind"] = *data.NumSlotsBehind
		}
		details["stage"] = "node_unhealthy"
		return build(domain.CodeRPCError, domain.CertaintyUnknownResolvable, e.Message, details, expiry)
	}

	return build(domain.CodeRPCError, domain.CertaintyUnknownResolvable, e.Message, details, expiry)
}

// codeSignatureLengthMismatch is returned when the signature count does not match the header.
const codeSignatureLengthMismatch = -32013

func isConnectFailure(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetwork(err error) bool {
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
