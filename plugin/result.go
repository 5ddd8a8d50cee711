package plugin

// ResultStatus tags a RawResult as either successful or failed.
type ResultStatus string

const (
	// StatusOk indicates execute completed and produced a payload.
	// An empty payload with StatusOk means "ran successfully, no findings".
	StatusOk ResultStatus = "ok"

	// StatusFailed indicates the external work failed. The reason carries
	// a short, structured description ("timeout", "upstream returned 503").
	StatusFailed ResultStatus = "failed"
)

// RawResult is the tagged outcome of a plugin's execute stage.
//
// Expected failure modes (no results found, upstream timeout) and unexpected
// ones (network layer errors) both surface here as StatusFailed with a
// reason, never as a raised error: execute is the boundary that converts
// unstructured failures into structured results.
type RawResult struct {
	// Status tags the variant.
	Status ResultStatus `json:"status"`

	// Payload is the opaque structured output when Status is StatusOk.
	Payload map[string]any `json:"payload,omitempty"`

	// Reason describes the failure when Status is StatusFailed.
	Reason string `json:"reason,omitempty"`
}

// Ok creates a successful RawResult carrying the given payload.
func Ok(payload map[string]any) RawResult {
	return RawResult{
		Status:  StatusOk,
		Payload: payload,
	}
}

// Failed creates a failed RawResult with the given reason.
func Failed(reason string) RawResult {
	return RawResult{
		Status: StatusFailed,
		Reason: reason,
	}
}

// OK reports whether the result is the successful variant.
func (r RawResult) OK() bool {
	return r.Status == StatusOk
}

// IsFailure reports whether the result is the failed variant.
func (r RawResult) IsFailure() bool {
	return r.Status == StatusFailed
}
