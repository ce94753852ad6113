package logging

import (
	"regexp"
	"strings"
)

// Sensitive field names that should be redacted.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"passphrase",
	"credential",
	"private_key",
	"privatekey",
	"certificate-key",
}

// Patterns for secrets that may appear in remote command lines.
var secretPatterns = []*regexp.Regexp{
	// kubeadm bootstrap tokens ([a-z0-9]{6}.[a-z0-9]{16})
	regexp.MustCompile(`\b[a-z0-9]{6}\.[a-z0-9]{16}\b`),

	// kubeadm certificate keys and discovery hashes
	regexp.MustCompile(`(?i)(--certificate-key[= ])([a-f0-9]{64})`),
	regexp.MustCompile(`(?i)(sha256:)([a-f0-9]{64})`),

	// sshpass invocations carrying an inline password
	regexp.MustCompile(`(?i)(sshpass -p )(\S+)`),

	// Generic key/value secrets
	regexp.MustCompile(`(?i)(key|token|secret|password|passphrase)[=:]["']?([a-zA-Z0-9+/=_-]{16,})["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces sensitive information in a string. Remote command lines
// are passed through here before they reach the log output.
func Redact(s string) string {
	result := s

	for _, pattern := range secretPatterns {
		groups := pattern.NumSubexp()
		if groups >= 2 {
			result = pattern.ReplaceAllString(result, "${1}"+RedactedValue)
		} else {
			result = pattern.ReplaceAllString(result, RedactedValue)
		}
	}

	return result
}

// RedactArgs redacts an assembled command argument list, returning a safe
// copy for logging. The argument following a sensitive flag is replaced
// wholesale.
func RedactArgs(args []string) []string {
	result := make([]string, len(args))

	redactNext := false
	for i, arg := range args {
		if redactNext {
			result[i] = RedactedValue
			redactNext = false
			continue
		}
		if IsSensitiveField(strings.TrimLeft(arg, "-")) {
			result[i] = arg
			redactNext = true
			continue
		}
		result[i] = Redact(arg)
	}

	return result
}

// IsSensitiveField checks if a field name is considered sensitive.
func IsSensitiveField(name string) bool {
	lowerName := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lowerName, field) {
			return true
		}
	}
	return false
}
