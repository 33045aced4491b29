package llm

import "errors"

var (
	// ErrNotConfigured means no API key is available for the user or server.
	// Checked before any model call is attempted.
	ErrNotConfigured = errors.New("llm: model API key not configured")

	// ErrEmptyResult means extraction succeeded at the transport level but
	// recovered zero subjects. Retried by re-submitting the same source text.
	ErrEmptyResult = errors.New("llm: no subjects extracted")
)
