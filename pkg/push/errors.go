package push

// Error codes the gateway reports per token. The set is closed: anything
// outside it is treated as transient.
const (
	ErrCodeUnregistered    = "UNREGISTERED"
	ErrCodeInvalidToken    = "INVALID_TOKEN"
	ErrCodeInvalidArgument = "INVALID_ARGUMENT"
	ErrCodeInternal        = "INTERNAL"
	ErrCodeUnavailable     = "UNAVAILABLE"
	ErrCodeQuotaExceeded   = "QUOTA_EXCEEDED"
)

// PermanentTokenFailure reports whether the error code means the device
// token itself is bad and should be evicted rather than retried.
func PermanentTokenFailure(code string) bool {
	switch code {
	case ErrCodeUnregistered, ErrCodeInvalidToken, ErrCodeInvalidArgument:
		return true
	default:
		return false
	}
}
