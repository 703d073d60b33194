package retry

import "errors"

// ErrCircuitOpen is returned when a provider's breaker rejects the call.
var ErrCircuitOpen = errors.New("circuit breaker open")
