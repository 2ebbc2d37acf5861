// Package proxy forwards validated client requests to downstream services
// (the LLM completion endpoint and the analysis backend), applying
// timeouts and translating status codes. It shares the capture pipeline's
// error-classification philosophy but none of its storage stages.
package proxy

import "time"

// Classification is the outcome class of one forwarded call. At most one
// outcome is produced per request.
type Classification string

const (
	// ClassOK means the downstream call succeeded.
	ClassOK Classification = "ok"
	// ClassAuthRequired means the downstream rejected the forwarded
	// credential.
	ClassAuthRequired Classification = "authRequired"
	// ClassDegraded means a synthesized stand-in result was returned
	// instead of a downstream answer.
	ClassDegraded Classification = "degraded"
	// ClassUpstreamError means the downstream returned a non-timeout
	// failure; its status code is preserved where meaningful.
	ClassUpstreamError Classification = "upstreamError"
	// ClassTimeout means the call exceeded its deadline and was cancelled.
	ClassTimeout Classification = "timeout"
)

// Result carries the classified outcome of a buffered downstream call.
// Once a deadline fires, no further bytes from the downstream call are
// accepted into the result.
type Result struct {
	Classification Classification
	StatusCode     int
	Payload        map[string]any
	Err            string
	Elapsed        time.Duration
}
