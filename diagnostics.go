package pagepick

import (
	"errors"
	"fmt"
)

// Request validation errors. All are returned wrapped in *InputError.
var (
	ErrEmptyBatch     = errors.New("no images in request")
	ErrMissingURL     = errors.New("image url is required")
	ErrDuplicateURL   = errors.New("duplicate image url")
	ErrInvalidTarget  = errors.New("invalid section target")
	ErrInvalidWeights = errors.New("invalid weight factors")
	ErrInvalidOption  = errors.New("invalid option")
)

// Classification collaborator errors.
var (
	ErrClassifierUnavailable   = errors.New("classifier not configured")
	ErrMalformedClassification = errors.New("malformed classification response")
)

// InputError reports a malformed request. It is the only error Select returns.
type InputError struct {
	Field string
	Err   error
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func inputErrorf(field string, sentinel error, format string, args ...any) *InputError {
	return &InputError{Field: field, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// DiagnosticKind names a recovered degradation.
type DiagnosticKind string

const (
	KindMetricGap             DiagnosticKind = "MetricGap"
	KindScoringFailure        DiagnosticKind = "ScoringFailure"
	KindClassificationFailure DiagnosticKind = "ClassificationFailure"
	KindAllocationShortfall   DiagnosticKind = "AllocationShortfall"
	KindSuspectURL            DiagnosticKind = "SuspectURL"
)

// Diagnostic explains one degradation. URL is empty for batch-level entries.
type Diagnostic struct {
	URL     string         `json:"url,omitempty"`
	Kind    DiagnosticKind `json:"kind"`
	Warning string         `json:"warning"`
}

type diagnostics []Diagnostic

func (d *diagnostics) add(url string, kind DiagnosticKind, format string, args ...any) {
	*d = append(*d, Diagnostic{
		URL:     url,
		Kind:    kind,
		Warning: string(kind) + ": " + fmt.Sprintf(format, args...),
	})
}
