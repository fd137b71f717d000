package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go-fetch-pipeline/internal/model"
)

// Sink receives outcomes from any worker. Append calls are serialized by the
// sink itself; a returned error is fatal to the run.
type Sink interface {
	Append(ctx context.Context, outcome model.Outcome) error
	Close() error
}

// JSONLSink writes one {url, content} line per successful outcome. Failed
// outcomes are not written. Every line goes out in a single Write.
type JSONLSink struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File
	fsync  bool
	lines  int
	closed bool
}

// NewJSONLSink writes to w. The caller keeps ownership of w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// CreateJSONLSink truncates or creates path. With fsync every line is synced
// to disk before Append returns.
func CreateJSONLSink(path string, fsync bool) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return &JSONLSink{w: f, file: f, fsync: fsync}, nil
}

func (s *JSONLSink) Append(_ context.Context, outcome model.Outcome) error {
	if !outcome.Succeeded() {
		return nil
	}

	// encode outside the lock, write inside it
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(outcome.Line()); err != nil {
		return fmt.Errorf("encode outcome for %s: %w", outcome.Endpoint, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("jsonl sink is closed")
	}
	n, err := s.w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("write outcome for %s: %w", outcome.Endpoint, err)
	}
	if n != buf.Len() {
		return fmt.Errorf("write outcome for %s: %w", outcome.Endpoint, io.ErrShortWrite)
	}
	if s.fsync && s.file != nil {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("sync output: %w", err)
		}
	}
	s.lines++
	return nil
}

// Lines is the number of lines written so far
func (s *JSONLSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// MultiSink hands every outcome to each sink in order; the first error wins
type MultiSink struct {
	mu    sync.Mutex
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Append(ctx context.Context, outcome model.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sinks {
		if err := s.Append(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
