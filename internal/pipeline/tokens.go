package pipeline

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"

	"go-fetch-pipeline/internal/model"

	jsoniter "github.com/json-iterator/go"
)

// ErrMalformedStream is reported when the bytes are not well-formed JSON
var ErrMalformedStream = errors.New("malformed json stream")

// tokenBufferSize bounds how much of a body is decoded ahead of the consumer
const tokenBufferSize = 512

// Event is the kind of a Token
type Event uint8

const (
	ObjectStart Event = iota
	ObjectEnd
	ArrayStart
	ArrayEnd
	ScalarString
	ScalarNumber
	ScalarBool
	ScalarNull
)

var eventNames = [...]string{"object_start", "object_end", "array_start", "array_end", "string", "number", "boolean", "null"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "event(" + strconv.Itoa(int(e)) + ")"
}

// IsScalar reports whether the event carries a value
func (e Event) IsScalar() bool { return e >= ScalarString }

// Token is one parse event. Path is relative to the stream root ("" for the root).
type Token struct {
	Path  string
	Event Event
	Value model.Value
}

// ReadError wraps a failure of the underlying reader (as opposed to bad JSON)
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read body: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// errReader remembers the first non-EOF error returned by the wrapped reader
type errReader struct {
	r   io.Reader
	err error
}

func (er *errReader) Read(p []byte) (int, error) {
	n, err := er.r.Read(p)
	if err != nil && err != io.EOF && er.err == nil {
		er.err = err
	}
	return n, err
}

// Tokenize turns a byte stream into a lazy token sequence. Several top-level
// values may follow each other. The sequence stops at the first error.
func Tokenize(r io.Reader) iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		src := &errReader{r: r}
		w := &tokenWalker{
			it:    jsoniter.Parse(jsoniter.ConfigDefault, src, tokenBufferSize),
			src:   src,
			yield: yield,
		}
		for {
			if w.it.WhatIsNext() == jsoniter.InvalidValue {
				w.finish()
				return
			}
			if !w.value("") || !w.check() {
				return
			}
			// a top-level scalar may end exactly at EOF
			if w.it.Error == io.EOF {
				return
			}
		}
	}
}

type tokenWalker struct {
	it      *jsoniter.Iterator
	src     *errReader
	yield   func(Token, error) bool
	stopped bool
}

func (w *tokenWalker) emit(tok Token) bool {
	if w.stopped {
		return false
	}
	if !w.yield(tok, nil) {
		w.stopped = true
	}
	return !w.stopped
}

func (w *tokenWalker) fail(err error) {
	if w.stopped {
		return
	}
	w.stopped = true
	w.yield(Token{}, err)
}

func (w *tokenWalker) streamErr() error {
	if w.src.err != nil {
		return &ReadError{Err: w.src.err}
	}
	return fmt.Errorf("%w: %v", ErrMalformedStream, w.it.Error)
}

// check fails the walk if the iterator recorded anything other than a clean EOF
func (w *tokenWalker) check() bool {
	if w.it.Error != nil && w.it.Error != io.EOF {
		w.fail(w.streamErr())
		return false
	}
	if w.src.err != nil {
		w.fail(w.streamErr())
		return false
	}
	return true
}

// finish is called when no further value starts; only a clean EOF ends quietly
func (w *tokenWalker) finish() {
	if w.it.Error == io.EOF && w.src.err == nil {
		return
	}
	if w.it.Error == nil {
		w.it.ReportError("Tokenize", "unexpected character")
	}
	w.fail(w.streamErr())
}

func (w *tokenWalker) value(path string) bool {
	it := w.it
	switch it.WhatIsNext() {
	case jsoniter.ObjectValue:
		if !w.emit(Token{Path: path, Event: ObjectStart}) {
			return false
		}
		it.ReadObjectCB(func(_ *jsoniter.Iterator, field string) bool {
			return w.value(joinField(path, field))
		})
		if w.stopped || !w.check() {
			return false
		}
		return w.emit(Token{Path: path, Event: ObjectEnd})
	case jsoniter.ArrayValue:
		if !w.emit(Token{Path: path, Event: ArrayStart}) {
			return false
		}
		i := 0
		it.ReadArrayCB(func(_ *jsoniter.Iterator) bool {
			ok := w.value(path + "[" + strconv.Itoa(i) + "]")
			i++
			return ok
		})
		if w.stopped || !w.check() {
			return false
		}
		return w.emit(Token{Path: path, Event: ArrayEnd})
	case jsoniter.StringValue:
		s := it.ReadString()
		if !w.check() {
			return false
		}
		return w.emit(Token{Path: path, Event: ScalarString, Value: model.String(s)})
	case jsoniter.NumberValue:
		n := it.ReadNumber()
		if !w.check() {
			return false
		}
		v, err := model.ParseNumber(string(n))
		if err != nil {
			w.fail(fmt.Errorf("%w: %v", ErrMalformedStream, err))
			return false
		}
		return w.emit(Token{Path: path, Event: ScalarNumber, Value: v})
	case jsoniter.BoolValue:
		b := it.ReadBool()
		if !w.check() {
			return false
		}
		return w.emit(Token{Path: path, Event: ScalarBool, Value: model.Bool(b)})
	case jsoniter.NilValue:
		it.ReadNil()
		if !w.check() {
			return false
		}
		return w.emit(Token{Path: path, Event: ScalarNull, Value: model.Null()})
	default:
		if it.Error == nil || it.Error == io.EOF {
			it.ReportError("Tokenize", "unexpected end of value")
		}
		w.fail(w.streamErr())
		return false
	}
}

func joinField(prefix, field string) string {
	if prefix == "" {
		return field
	}
	return prefix + "." + field
}
