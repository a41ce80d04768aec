package routing

import (
	"context"
	"errors"
	"net"
	"net/http"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/rpc/provider"
)

// Classification is the normalized view of a failed attempt.
type Classification struct {
	Kind      domain.OutcomeKind
	Retryable bool
	Status    int
	Message   string
}

// grpcHTTPStatus maps status codes that carry a definite response to their HTTP equivalent.
// Canceled, DeadlineExceeded and Unavailable are handled before this table is consulted.
var grpcHTTPStatus = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unknown:            http.StatusInternalServerError,
	codes.Internal:           http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unimplemented:      http.StatusNotImplemented,
}

// Classify maps any error to an outcome kind. It never fails.
func Classify(err error) Classification {
	if err == nil {
		// Should not happen; callers only classify failures.
		return Classification{Kind: domain.KindNetwork, Retryable: true}
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return Classification{
			Kind:      failure.Kind,
			Retryable: failure.Kind.Retryable(),
			Status:    failure.Status,
			Message:   failure.Message,
		}
	}

	st, isGRPC := status.FromError(err)

	// Cancellation and deadlines are checked first: net/http wraps both in
	// *url.Error, which would otherwise look like a connectivity fault.
	if errors.Is(err, context.Canceled) || (isGRPC && st.Code() == codes.Canceled) {
		return Classification{Kind: domain.KindCancelled, Message: "operation cancelled"}
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) ||
		(isGRPC && st.Code() == codes.DeadlineExceeded) {
		return Classification{Kind: domain.KindTimeout, Retryable: true, Message: "request timed out"}
	}

	var statusErr *provider.StatusError
	if errors.As(err, &statusErr) {
		return fromStatus(statusErr.Status, statusErr.Message)
	}

	if isGRPC && st.Code() != codes.Unavailable {
		return fromStatus(grpcHTTPStatus[st.Code()], grpcMessage(st))
	}

	return Classification{Kind: domain.KindNetwork, Retryable: true, Message: err.Error()}
}

func fromStatus(code int, msg string) Classification {
	if msg == "" {
		msg = http.StatusText(code)
	}
	switch {
	case code >= 500 && code <= 599:
		return Classification{Kind: domain.KindServerError, Retryable: true, Status: code, Message: msg}
	default:
		return Classification{Kind: domain.KindClientError, Status: code, Message: msg}
	}
}

func grpcMessage(st *status.Status) string {
	for _, d := range st.Details() {
		if lm, ok := d.(*errdetails.LocalizedMessage); ok && lm.GetMessage() != "" {
			return lm.GetMessage()
		}
	}
	return st.Message()
}
