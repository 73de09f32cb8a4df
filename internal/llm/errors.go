package llm

import "fmt"

// maxDiagnosticLen bounds how much of the raw model output is carried on a
// MalformedOutputError for diagnostics.
const maxDiagnosticLen = 512

// MalformedOutputError means the model's text could not be coerced into JSON
// after every recovery attempt. It is always file-scoped and never aborts a
// batch.
type MalformedOutputError struct {
	Raw string // original text, truncated to maxDiagnosticLen
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model output is not recoverable JSON (%d bytes kept)", len(e.Raw))
}

func newMalformedOutputError(raw string) *MalformedOutputError {
	if len(raw) > maxDiagnosticLen {
		raw = raw[:maxDiagnosticLen]
	}
	return &MalformedOutputError{Raw: raw}
}

// RateLimitError is an explicit throttling signal from the recognition call
// (HTTP 429, or 402 quota exhaustion). It is the only error class the batch
// processor retries.
type RateLimitError struct {
	StatusCode int
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("recognition rate limited (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("recognition rate limited (status %d): %s", e.StatusCode, e.Message)
}

// TransportError is any other failure of the recognition call: network
// errors, non-2xx statuses, unusable response envelopes. Not retried.
type TransportError struct {
	StatusCode int // 0 when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("recognition transport failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("recognition transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
