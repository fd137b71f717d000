package pipeline

import (
	"io"
	"iter"
	"strings"

	"go-fetch-pipeline/internal/model"
)

// ParseState is the state of the record parser
type ParseState uint8

const (
	StateIdle ParseState = iota
	StateAccumulating
)

// ParserOptions tunes how records are delimited and flattened
type ParserOptions struct {
	Arrays          model.ArrayPolicy
	UnwrapRootArray bool
}

// RecordParser assembles flat records from a token sequence. A record opens on
// an object at the stream root (or, with UnwrapRootArray, on an object directly
// inside a root array) and is complete when that object closes.
// A parser belongs to one fetch task and is not safe for concurrent use.
type RecordParser struct {
	opts ParserOptions

	state       ParseState
	depth       int // open containers relative to the stream root
	recordDepth int // depth right after the record's opening brace
	arrayDepth  int // arrays open inside the current record
	rootArray   bool
	prefix      string
	current     model.Record
}

func NewRecordParser(opts ParserOptions) *RecordParser {
	if opts.Arrays == "" {
		opts.Arrays = model.ArrayIndex
	}
	return &RecordParser{opts: opts}
}

func (p *RecordParser) State() ParseState { return p.state }

// Feed advances the state machine by one token and returns a record when one closes
func (p *RecordParser) Feed(tok Token) (model.Record, bool) {
	switch tok.Event {
	case ObjectStart:
		if p.state == StateIdle && p.isBoundary() {
			p.state = StateAccumulating
			p.current = model.Record{}
			p.prefix = tok.Path
			p.recordDepth = p.depth + 1
			p.arrayDepth = 0
		}
		p.depth++
	case ArrayStart:
		if p.state == StateAccumulating {
			p.arrayDepth++
		} else if p.depth == 0 && p.opts.UnwrapRootArray {
			p.rootArray = true
		}
		p.depth++
	case ArrayEnd:
		p.depth--
		if p.state == StateAccumulating {
			p.arrayDepth--
		} else if p.depth == 0 {
			p.rootArray = false
		}
	case ObjectEnd:
		p.depth--
		if p.state == StateAccumulating && p.depth == p.recordDepth-1 {
			rec := p.current
			p.current = model.Record{}
			p.state = StateIdle
			return rec, true
		}
	default:
		if p.state != StateAccumulating {
			return model.Record{}, false
		}
		if p.arrayDepth > 0 && p.opts.Arrays == model.ArrayOmit {
			return model.Record{}, false
		}
		p.current.Set(p.fieldPath(tok.Path), tok.Value)
	}
	return model.Record{}, false
}

func (p *RecordParser) isBoundary() bool {
	if p.depth == 0 {
		return true
	}
	return p.rootArray && p.depth == 1
}

// fieldPath strips the record's own location from a token path
func (p *RecordParser) fieldPath(path string) model.Path {
	if p.prefix == "" {
		return model.Path(path)
	}
	rel := strings.TrimPrefix(path, p.prefix)
	return model.Path(strings.TrimPrefix(rel, "."))
}

// Records drives the parser over tokens, yielding each record the moment it closes.
// A token error is yielded once and ends the sequence.
func (p *RecordParser) Records(tokens iter.Seq2[Token, error]) iter.Seq2[model.Record, error] {
	return func(yield func(model.Record, error) bool) {
		for tok, err := range tokens {
			if err != nil {
				yield(model.Record{}, err)
				return
			}
			if rec, ok := p.Feed(tok); ok {
				if !yield(rec, nil) {
					return
				}
			}
		}
	}
}

// ParseRecords is the one-shot form: tokenize r and collect every record in stream order
func ParseRecords(r io.Reader, opts ParserOptions) ([]model.Record, error) {
	records := make([]model.Record, 0)
	for rec, err := range NewRecordParser(opts).Records(Tokenize(r)) {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}
