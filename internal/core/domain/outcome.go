package domain

// OutcomeKind classifies a failed remote operation.
type OutcomeKind string

const (
	KindNetwork     OutcomeKind = "network"
	KindTimeout     OutcomeKind = "timeout"
	KindServerError OutcomeKind = "server_error"
	KindClientError OutcomeKind = "client_error"
	KindCancelled   OutcomeKind = "cancelled"
)

// Retryable reports whether failures of this kind may be retried.
func (k OutcomeKind) Retryable() bool {
	switch k {
	case KindNetwork, KindTimeout, KindServerError:
		return true
	default:
		return false
	}
}
