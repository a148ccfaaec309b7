package provider

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrRetryable marks transient failures: timeouts, network errors,
	// provider rate limiting, 5xx responses.
	ErrRetryable = errors.New("retryable provider failure")
	// ErrFatal marks content-level failures the provider will never accept,
	// such as a corrupt payload or unsupported codec.
	ErrFatal = errors.New("fatal provider failure")
	// ErrUnavailable marks a provider that cannot currently take calls.
	// Workers treat it like ErrRetryable but also use it to trigger
	// fallback to the next provider in the route.
	ErrUnavailable = errors.New("provider unavailable")
)

// Wrap tags an error with a classification marker while keeping provider and
// operation context in the message. The marker should be one of the exported
// sentinel errors above.
func Wrap(marker error, provider, operation, message string, err error) error {
	detail := buildDetail(provider, operation, message)
	if marker == nil {
		marker = ErrRetryable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error should trigger backoff and retry.
// Unclassified errors default to retryable; only an explicit fatal marker
// dead-letters a job without retries.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrFatal)
}

// IsFatal reports whether an error is a content-level failure.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// IsUnavailable reports whether the provider itself was unreachable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

func buildDetail(provider, operation, message string) string {
	parts := make([]string, 0, 3)
	if provider = strings.TrimSpace(provider); provider != "" {
		parts = append(parts, provider)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "provider failure"
	}
	return strings.Join(parts, ": ")
}
