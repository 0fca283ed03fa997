package api

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"

	"github.com/vietddude/txgate/internal/core/domain"
)

// errorDomain identifies this service in google.rpc.ErrorInfo.
const errorDomain = "txgate.transaction.v1"

// toStatus maps a core error onto a gRPC status with ErrorInfo and, for
// argument errors, a BadRequest field violation.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}

	code, reason := errorReason(err)
	info := &errdetails.ErrorInfo{Reason: reason, Domain: errorDomain}

	var de *domain.Error
	if errors.As(err, &de) && de.Op != "" {
		info.Metadata = map[string]string{"operation": de.Op}
	}

	st := status.New(code, err.Error())
	withInfo, derr := st.WithDetails(info)
	if derr != nil {
		return st.Err()
	}
	st = withInfo

	if de != nil && de.Field != "" {
		violation := &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: de.Field, Description: de.Msg},
			},
		}
		if withViolation, derr := st.WithDetails(violation); derr == nil {
			st = withViolation
		}
	}
	return st.Err()
}
