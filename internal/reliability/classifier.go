package reliability

import (
	"strconv"
	"strings"
	"time"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableDetail inspects a recorded provider error detail for an embedded
// "status=NNN" token and classifies it. Details without a status token are
// treated as retryable transport failures.
func IsRetryableDetail(detail string) bool {
	idx := strings.Index(detail, "status=")
	if idx < 0 {
		return true
	}
	rest := detail[idx+len("status="):]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	code, err := strconv.Atoi(rest[:end])
	if err != nil {
		return true
	}
	return IsRetryableHTTPStatus(code)
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
