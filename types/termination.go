package types

import (
	"encoding/json"
	"time"
)

// TerminationRequest is the exact JSON body sent to the terminate endpoint
type TerminationRequest struct {
	InstanceIDs InstanceSet `json:"instance_ids"`
}

// TerminationResult is the success side of a terminate call.
// Data holds the provider's "data" object byte-for-byte.
type TerminationResult struct {
	StatusCode  int             `json:"status_code"`
	Data        json.RawMessage `json:"data"`
	InstanceIDs []string        `json:"instance_ids"`
}

// FirstInstanceID returns the first echoed id, if any
func (r *TerminationResult) FirstInstanceID() (string, bool) {
	if r == nil || len(r.InstanceIDs) == 0 {
		return "", false
	}
	return r.InstanceIDs[0], true
}

// WaitOutcomeKind tags the result of the completion waiter
type WaitOutcomeKind string

const (
	WaitSkipped          WaitOutcomeKind = "skipped"
	WaitTerminated       WaitOutcomeKind = "terminated"
	WaitUnexpectedStatus WaitOutcomeKind = "unexpected_status"
	WaitTimedOut         WaitOutcomeKind = "timed_out"
)

// WaitOutcome is the final state of the completion waiter
type WaitOutcome struct {
	Kind       WaitOutcomeKind `json:"kind"`
	InstanceID string          `json:"instance_id,omitempty"`
	Status     InstanceStatus  `json:"status,omitempty"`
	Elapsed    time.Duration   `json:"elapsed"`
	Polls      int             `json:"polls"`
}

// Succeeded reports whether the outcome should be treated as success
func (o WaitOutcome) Succeeded() bool {
	return o.Kind == WaitSkipped || o.Kind == WaitTerminated
}
