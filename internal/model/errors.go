package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a fetch task failed
type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureTransport FailureKind = "transport"
	FailureParse     FailureKind = "parse"
	FailureUnknown   FailureKind = "unknown"
)

// FailureKinds lists every kind in a stable order
var FailureKinds = []FailureKind{FailureTimeout, FailureTransport, FailureParse, FailureUnknown}

// FetchError is the classified failure of a single endpoint
type FetchError struct {
	Kind       FailureKind
	Endpoint   string
	StatusCode int // observed HTTP status, 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s failure for %s", e.Kind, e.Endpoint)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, &FetchError{Kind: FailureTimeout})
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	if !ok {
		return false
	}
	return t.Endpoint == "" && t.StatusCode == 0 && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the failure kind carried by err, or FailureUnknown
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FailureUnknown
}
