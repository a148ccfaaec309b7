// Package provider defines the narrow contract to external AI backends and
// the HTTP adapter implementing it. Failure classification drives the retry
// and fallback policy: retryable errors back off, unavailable providers
// trigger route fallback, fatal errors dead-letter the job.
package provider
