package pipeline

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenSummary struct {
	Path  string
	Event Event
	Value string
}

func collectTokens(t *testing.T, r io.Reader) ([]tokenSummary, error) {
	t.Helper()
	var out []tokenSummary
	for tok, err := range Tokenize(r) {
		if err != nil {
			return out, err
		}
		s := tokenSummary{Path: tok.Path, Event: tok.Event}
		if tok.Event.IsScalar() {
			s.Value = tok.Value.String()
		}
		out = append(out, s)
	}
	return out, nil
}

func TestTokenizePaths(t *testing.T) {
	tokens, err := collectTokens(t, strings.NewReader(`{"a":1,"b":{"c":"x"},"tags":[true,null]}`))
	require.NoError(t, err)

	assert.Equal(t, []tokenSummary{
		{"", ObjectStart, ""},
		{"a", ScalarNumber, "1"},
		{"b", ObjectStart, ""},
		{"b.c", ScalarString, `"x"`},
		{"b", ObjectEnd, ""},
		{"tags", ArrayStart, ""},
		{"tags[0]", ScalarBool, "true"},
		{"tags[1]", ScalarNull, "null"},
		{"tags", ArrayEnd, ""},
		{"", ObjectEnd, ""},
	}, tokens)
}

func TestTokenizeMultipleTopLevelValues(t *testing.T) {
	tokens, err := collectTokens(t, strings.NewReader("{\"a\":1}\n{\"b\":2} 3"))
	require.NoError(t, err)

	var events []Event
	for _, tok := range tokens {
		events = append(events, tok.Event)
	}
	assert.Equal(t, []Event{
		ObjectStart, ScalarNumber, ObjectEnd,
		ObjectStart, ScalarNumber, ObjectEnd,
		ScalarNumber,
	}, events)
}

func TestTokenizeScalarAtEOF(t *testing.T) {
	for in, want := range map[string]int{
		"42":           1,
		"-1.5e3":       1,
		`{"a":1} 3`:    4,
		"true":         1,
		`"x"`:          1,
		"1 2":          2,
		"{\"a\":1}\n7": 4,
	} {
		tokens, err := collectTokens(t, strings.NewReader(in))
		require.NoError(t, err, in)
		assert.Len(t, tokens, want, in)
	}
}

func TestTokenizeRejectsInvalidNumbers(t *testing.T) {
	for _, in := range []string{`{"a":1.2.3}`, `{"a":-}`, `{"a":--5}`, `{"a":1e}`, `{"a":01}`, `[1.]`, `-`} {
		_, err := collectTokens(t, strings.NewReader(in))
		assert.ErrorIs(t, err, ErrMalformedStream, in)
	}
}

func TestTokenizeEmptyInput(t *testing.T) {
	for _, in := range []string{"", "   \n\t"} {
		tokens, err := collectTokens(t, strings.NewReader(in))
		assert.NoError(t, err)
		assert.Empty(t, tokens)
	}
}

func TestTokenizeMalformed(t *testing.T) {
	tests := map[string]string{
		"truncated object": `{"a":1`,
		"missing value":    `{"a":`,
		"bad literal":      `{"a":tru}`,
		"garbage":          `}{`,
		"after record":     `{"a":1} ]`,
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := collectTokens(t, strings.NewReader(in))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedStream)
		})
	}
}

func TestTokenizeReadError(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(strings.NewReader(`{"a":1,"b":`), &failingReader{err: boom})

	_, err := collectTokens(t, r)
	require.Error(t, err)

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedStream)
}

func TestTokenizeStopsWhenConsumerStops(t *testing.T) {
	n := 0
	for range Tokenize(strings.NewReader(`{"a":1,"b":2,"c":3}`)) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestEventString(t *testing.T) {
	assert.Equal(t, "object_start", ObjectStart.String())
	assert.Equal(t, "null", ScalarNull.String())
	assert.Equal(t, "event(42)", Event(42).String())
	assert.False(t, ArrayEnd.IsScalar())
	assert.True(t, ScalarBool.IsScalar())
}

type failingReader struct {
	err error
}

func (f *failingReader) Read([]byte) (int, error) { return 0, f.err }
