package models

// ErrorKind categorizes failures observed during a collection run. Values are
// used as metric labels and log attributes.
type ErrorKind string

const (
	ErrorKindRateLimited           ErrorKind = "rate_limited"
	ErrorKindTransientTransport    ErrorKind = "transient_transport"
	ErrorKindAuthenticationFailure ErrorKind = "auth_failed"
	ErrorKindPersistenceFailure    ErrorKind = "persistence_failed"
	ErrorKindCheckpointCorruption  ErrorKind = "checkpoint_corrupted"
	ErrorKindOperatorInterrupt     ErrorKind = "operator_interrupt"
	ErrorKindRequestRejected       ErrorKind = "request_rejected"
)

// Recoverable reports whether the run continues after an error of this kind.
// Authentication failures are recoverable only until retries are exhausted,
// which the caller decides.
func (k ErrorKind) Recoverable() bool {
	switch k {
	case ErrorKindRateLimited, ErrorKindTransientTransport, ErrorKindPersistenceFailure, ErrorKindCheckpointCorruption:
		return true
	default:
		return false
	}
}
