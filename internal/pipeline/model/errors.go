package model

import (
	"fmt"
	"time"
)

// Error kinds surfaced by pipeline stages.
const (
	KindIngestionMalformed      = "ingestion_malformed_input"
	KindParsingStructural       = "parsing_structural_invalid"
	KindEnrichmentFailure       = "enrichment_failure"
	KindSamplingFailure         = "sampling_failure"
	KindTransformFailure        = "transform_failure"
	KindBackendDeliveryError    = "backend_delivery_error"
	KindResultCollectionFailure = "result_collection_failure"
)

// StageError is the structured error every stage returns instead of
// letting a fault escape its boundary.
type StageError struct {
	Stage          string        `json:"stage"`
	Kind           string        `json:"error"`
	Message        string        `json:"message,omitempty"`
	ProcessingTime time.Duration `json:"processing_time_ms"`
	cause          error
}

// NewStageError builds a StageError wrapping an underlying cause.
func NewStageError(stage, kind string, cause error) *StageError {
	e := &StageError{Stage: stage, Kind: kind, cause: cause}
	if cause != nil {
		e.Message = cause.Error()
	}
	return e
}

func (e *StageError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s: %s", e.Stage, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
}

func (e *StageError) Unwrap() error { return e.cause }

// WithProcessingTime records how long the stage ran before failing.
func (e *StageError) WithProcessingTime(d time.Duration) *StageError {
	e.ProcessingTime = d
	return e
}
