package pipeline

import (
	"encoding/json"
	"strings"
	"testing"

	"go-fetch-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJSON(t *testing.T, body string, opts ParserOptions) []string {
	t.Helper()
	records, err := ParseRecords(strings.NewReader(body), opts)
	require.NoError(t, err)
	out := make([]string, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		require.NoError(t, err)
		out[i] = string(data)
	}
	return out
}

func TestParseConcatenatedObjects(t *testing.T) {
	got := parseJSON(t, `{"a":1}{"b":2}`, ParserOptions{})
	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`}, got)
}

func TestParseFlattensNestedObjects(t *testing.T) {
	got := parseJSON(t, `{"id":7,"user":{"name":"ann","address":{"city":"Oslo"}},"ok":true}`, ParserOptions{})
	assert.Equal(t, []string{`{"id":7,"user.name":"ann","user.address.city":"Oslo","ok":true}`}, got)
}

func TestParseArrayPolicies(t *testing.T) {
	body := `{"id":1,"tags":["x","y"],"pts":[{"v":1}]}`

	assert.Equal(t,
		[]string{`{"id":1,"tags[0]":"x","tags[1]":"y","pts[0].v":1}`},
		parseJSON(t, body, ParserOptions{Arrays: model.ArrayIndex}))

	assert.Equal(t,
		[]string{`{"id":1}`},
		parseJSON(t, body, ParserOptions{Arrays: model.ArrayOmit}))
}

func TestParseRootArray(t *testing.T) {
	body := `[{"a":1},{"a":2,"b":{"c":3}}]`

	assert.Empty(t, parseJSON(t, body, ParserOptions{}))
	assert.Equal(t,
		[]string{`{"a":1}`, `{"a":2,"b.c":3}`},
		parseJSON(t, body, ParserOptions{UnwrapRootArray: true}))
}

func TestParseIgnoresTopLevelScalars(t *testing.T) {
	got := parseJSON(t, `1 "x" {"a":null} true`, ParserOptions{})
	assert.Equal(t, []string{`{"a":null}`}, got)
}

func TestParseEmptyAndEmptyObject(t *testing.T) {
	assert.Empty(t, parseJSON(t, ``, ParserOptions{}))
	assert.Equal(t, []string{`{}`}, parseJSON(t, `{}`, ParserOptions{}))
}

func TestParseIsDeterministic(t *testing.T) {
	body := `{"z":1,"a":{"y":2,"b":3},"m":[4,5]}`
	first := parseJSON(t, body, ParserOptions{})
	for range 20 {
		assert.Equal(t, first, parseJSON(t, body, ParserOptions{}))
	}
}

func TestParseMalformedKeepsEarlierRecords(t *testing.T) {
	records, err := ParseRecords(strings.NewReader(`{"a":1}{"b":`), ParserOptions{})
	require.ErrorIs(t, err, ErrMalformedStream)
	require.Len(t, records, 1)
	v, ok := records[0].Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v.String())
}

func TestRecordParserStates(t *testing.T) {
	p := NewRecordParser(ParserOptions{})
	assert.Equal(t, StateIdle, p.State())

	_, done := p.Feed(Token{Event: ObjectStart})
	assert.False(t, done)
	assert.Equal(t, StateAccumulating, p.State())

	_, done = p.Feed(Token{Path: "a", Event: ScalarString, Value: model.String("v")})
	assert.False(t, done)

	rec, done := p.Feed(Token{Event: ObjectEnd})
	require.True(t, done)
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, map[string]any{"a": "v"}, rec.Map())
}

func TestRecordsYieldsAsSoonAsClosed(t *testing.T) {
	// the second value is broken; the first record must arrive before the error
	var got []model.Record
	var gotErr error
	for rec, err := range NewRecordParser(ParserOptions{}).Records(Tokenize(strings.NewReader(`{"a":1} {"b"`))) {
		if err != nil {
			gotErr = err
			break
		}
		got = append(got, rec)
	}
	assert.Len(t, got, 1)
	assert.ErrorIs(t, gotErr, ErrMalformedStream)
}

func TestParseRecordBeforeTrailingScalar(t *testing.T) {
	assert.Equal(t, []string{`{"a":1}`}, parseJSON(t, `{"a":1} 3`, ParserOptions{}))
	assert.Empty(t, parseJSON(t, `42`, ParserOptions{}))
}

func TestParseInvalidNumberIsMalformed(t *testing.T) {
	for _, body := range []string{`{"a":1.2.3}`, `{"a":-}`, `{"a":--5}`} {
		_, err := ParseRecords(strings.NewReader(body), ParserOptions{})
		assert.ErrorIs(t, err, ErrMalformedStream, body)
	}
}
