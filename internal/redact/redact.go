package redact

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// keyPlaceholder replaces provider API keys found in error text.
const keyPlaceholder = "[REDACTED_KEY]"

// homePlaceholder replaces the user's home directory in error text.
const homePlaceholder = "[USER_HOME]"

// secretPatterns are regex heuristics for common secret types.
var secretPatterns = []*regexp.Regexp{
	// Generic API keys (long hex/base64 strings after common key patterns)
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	// AWS access key IDs
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	// AWS secret access keys
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	// Generic secrets/tokens/passwords in assignments
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	// Bearer tokens
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWTs (three base64 segments separated by dots)
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// Private key blocks
	regexp.MustCompile(`-----BEGIN\s+(RSA\s+)?PRIVATE KEY-----`),
	// GitHub tokens
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	// Slack tokens
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	// Anthropic API keys
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	// OpenAI API keys
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	// Generic long hex strings that look like secrets (32+ chars in an assignment)
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// errorRules are applied in order by SanitizeError.
var errorRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]+`), keyPlaceholder},
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), keyPlaceholder},
	{regexp.MustCompile(`Bearer\s+\S+`), "Bearer " + placeholder},
	{regexp.MustCompile(`(?i)(x-api-key|api-key|authorization):\s*\S+`), "$1: " + placeholder},
}

// homeDir is swapped in tests.
var homeDir = userHome

func userHome() string {
	if h := os.Getenv("USERPROFILE"); h != "" {
		return h
	}
	h, _ := os.UserHomeDir()
	return h
}

// Secrets replaces detected secrets in text with [REDACTED].
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllLiteralString(result, placeholder)
	}
	return result
}

// SanitizeError strips API keys, auth header values and the home directory
// from an error message.
func SanitizeError(msg string) string {
	if msg == "" {
		return msg
	}
	for _, r := range errorRules {
		msg = r.re.ReplaceAllString(msg, r.repl)
	}
	if home := homeDir(); home != "" && home != "/" {
		msg = strings.ReplaceAll(msg, home, homePlaceholder)
	}
	return msg
}

// Error returns an error whose message has been through SanitizeError. It
// returns nil for a nil error.
func Error(err error) error {
	if err == nil {
		return nil
	}
	return sanitizedError{msg: SanitizeError(err.Error()), err: err}
}

type sanitizedError struct {
	msg string
	err error
}

func (e sanitizedError) Error() string { return e.msg }
func (e sanitizedError) Unwrap() error { return e.err }

// ShouldRedactPath checks if a file path matches any of the redaction path patterns.
func ShouldRedactPath(path string, patterns []string) bool {
	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
		// Also try matching just the filename for patterns like "**/.env"
		cleanPattern := strings.TrimPrefix(pattern, "**/")
		if cleanPattern != pattern {
			base := filepath.Base(path)
			matched, err = filepath.Match(cleanPattern, base)
			if err == nil && matched {
				return true
			}
		}
	}
	return false
}

// Content redacts secrets from one file's content, or the whole content when
// path matches a redaction glob.
func Content(content, path string, redactPaths []string) string {
	if ShouldRedactPath(path, redactPaths) {
		return placeholder + " (file content redacted by path policy)\n"
	}
	return Secrets(content)
}
