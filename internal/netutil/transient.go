package netutil

import "strings"

// IsTransientNetworkError classifies DNS/TCP/timeout/hang-up errors as retryable,
// per spec.md §4.D.
func IsTransientNetworkError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	markers := []string{
		"timeout", "connection refused", "connection reset",
		"no such host", "network is unreachable", "eof",
		"broken pipe", "i/o timeout",
	}
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
