package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &FetchError{
		Kind:       FailureTimeout,
		Endpoint:   "http://a",
		StatusCode: 0,
		Err:        errors.New("deadline"),
	})

	assert.ErrorIs(t, err, &FetchError{Kind: FailureTimeout})
	assert.NotErrorIs(t, err, &FetchError{Kind: FailureParse})
	// a fully populated target is not a kind-only match
	assert.NotErrorIs(t, err, &FetchError{Kind: FailureTimeout, Endpoint: "http://b"})
}

func TestFetchErrorMessage(t *testing.T) {
	err := &FetchError{Kind: FailureTransport, Endpoint: "http://a", StatusCode: 404, Err: errors.New("unexpected status 404")}
	assert.Equal(t, "transport failure for http://a (status 404): unexpected status 404", err.Error())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, FailureParse, KindOf(&FetchError{Kind: FailureParse}))
	assert.Equal(t, FailureUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, FailureUnknown, KindOf(nil))
}
