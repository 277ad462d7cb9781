// Package secrets redacts credentials from strings, JSON and string maps:
// broker API keys/account ids, Postgres DSNs, AWS access keys, and
// bearer tokens. The logger set up by the CLI does not pass its output
// through this package, so log lines are not redacted.
package secrets

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Redactor provides secure redaction of sensitive data in logs and outputs
type Redactor struct {
	patterns    []*regexp.Regexp
	replacement string
}

// NewRedactor creates a new redactor with default sensitive patterns
func NewRedactor() *Redactor {
	// Default patterns for common sensitive data (case-insensitive)
	defaultPatterns := []string{
		// Database connection strings (Postgres DSNs for the candles store)
		`postgres://[^:]+:[^@]+@[^/]+/[^\s?"']+`,

		// API keys and tokens (broker venue credentials)
		`(?i)(?:api[_-]?key|token|secret|password|pwd|account[_-]?id)["\s]*[:=]["\s]*[^\s"',}]+`,
		`(?i)bearer\s+[a-zA-Z0-9\-\._~\+/]+=*`,
		`(?i)basic\s+[a-zA-Z0-9\+/]+=*`,

		// JWT tokens
		`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`,

		// AWS credentials used by the data-lake uploader
		`(?i)AKIA[0-9A-Z]{16}`,         // AWS Access Key ID
		`(?i)[0-9a-zA-Z/\+]{40}`,       // AWS Secret Access Key pattern

		// Private keys
		`-----BEGIN[A-Z\s]+PRIVATE KEY-----[\s\S]*?-----END[A-Z\s]+PRIVATE KEY-----`,
	}

	patterns := make([]*regexp.Regexp, len(defaultPatterns))
	for i, pattern := range defaultPatterns {
		patterns[i] = regexp.MustCompile(pattern)
	}
	
	return &Redactor{
		patterns:    patterns,
		replacement: "[REDACTED]",
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid regex pattern: %w", err)
	}
	r.patterns = append(r.patterns, compiled)
	return nil
}

// SetReplacement sets the replacement text for redacted content
func (r *Redactor) SetReplacement(replacement string) {
	r.replacement = replacement
}

// RedactString redacts sensitive data from a string
func (r *Redactor) RedactString(input string) string {
	result := input
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, r.replacement)
	}
	return result
}

// RedactBytes redacts sensitive data from bytes
func (r *Redactor) RedactBytes(input []byte) []byte {
	return []byte(r.RedactString(string(input)))
}

// RedactMap redacts sensitive data from a map[string]interface{}
func (r *Redactor) RedactMap(input map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for k, v := range input {
		if r.isSensitiveKey(k) {
			result[k] = r.replacement
		} else {
			result[k] = r.redactValue(v)
		}
	}
	return result
}

// RedactJSON redacts sensitive data from JSON
func (r *Redactor) RedactJSON(input []byte) ([]byte, error) {
	var data interface{}
	if err := json.Unmarshal(input, &data); err != nil {
		// If it's not valid JSON, treat as string
		return r.RedactBytes(input), nil
	}
	
	redacted := r.redactValue(data)
	return json.Marshal(redacted)
}

// redactValue recursively redacts values in nested structures
func (r *Redactor) redactValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return r.RedactString(v)
	case []byte:
		return r.RedactBytes(v)
	case map[string]interface{}:
		result := make(map[string]interface{})
		for k, val := range v {
			// Check if the key itself suggests sensitive content
			if r.isSensitiveKey(k) {
				result[k] = r.replacement
			} else {
				result[k] = r.redactValue(val)
			}
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, val := range v {
			result[i] = r.redactValue(val)
		}
		return result
	default:
		return value
	}
}

// isSensitiveKey checks if a key name suggests sensitive content
func (r *Redactor) isSensitiveKey(key string) bool {
	sensitiveKeys := []string{
		"password", "pwd", "pass", "secret", "token", "key", "auth",
		"credential", "dsn", "connection_string", "private_key",
		"access_key", "secret_key", "api_key", "bearer", "authorization",
		"account_id",
	}
	
	lowerKey := strings.ToLower(key)
	for _, sensitiveKey := range sensitiveKeys {
		if strings.Contains(lowerKey, sensitiveKey) {
			return true
		}
	}
	return false
}

// SecureLogger redacts a log message and its fields through a default
// Redactor. It does not write to any logger, and no component in this
// repository routes its log output through it.
type SecureLogger struct {
	redactor *Redactor
}

// NewSecureLogger creates a new secure logger with automatic redaction
func NewSecureLogger() *SecureLogger {
	return &SecureLogger{
		redactor: NewRedactor(),
	}
}

// RedactLogMessage redacts sensitive data from log messages
func (sl *SecureLogger) RedactLogMessage(message string, fields map[string]interface{}) (string, map[string]interface{}) {
	redactedMessage := sl.redactor.RedactString(message)
	redactedFields := sl.redactor.RedactMap(fields)
	return redactedMessage, redactedFields
}