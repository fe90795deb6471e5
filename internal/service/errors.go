package service

// Error codes carried on service responses when Success is false. Controllers
// map them to HTTP statuses; the messages are safe to show to users.
const (
	ErrCodeValidation        = "validation_error"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodePermission        = "permission_denied"
	ErrCodeStateConflict     = "state_conflict"
	ErrCodeNotFound          = "not_found"
	ErrCodeGateway           = "gateway_error"
	ErrCodeGatewayUnknown    = "gateway_unknown"
	ErrCodeInternal          = "internal_error"
)
