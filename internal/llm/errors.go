package llm

import (
	"errors"
	"strings"
)

var (
	// ErrThrottled marks a provider rate-limit response.
	ErrThrottled = errors.New("llm: throttled")
	// ErrExhausted is returned when every attempt failed and no fallback was given.
	ErrExhausted = errors.New("llm: retries exhausted")
	// ErrNoStructuredOutput means the response had neither a matching tool
	// call nor recoverable JSON in its text.
	ErrNoStructuredOutput = errors.New("llm: no structured output")
)

type statusCoder interface {
	StatusCode() int
}

// IsThrottled reports whether err is a provider rate-limit signal.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrThrottled) {
		return true
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() == 429 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests")
}
