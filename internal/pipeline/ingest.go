package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadEndpoints reads one endpoint per line. Whitespace around each line is
// trimmed and blank lines are skipped; order is preserved.
func ReadEndpoints(r io.Reader) ([]string, error) {
	var endpoints []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		endpoints = append(endpoints, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read endpoints: %w", err)
	}
	return endpoints, nil
}

// LoadEndpoints reads the endpoint list from a file
func LoadEndpoints(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open endpoint list: %w", err)
	}
	defer f.Close()
	return ReadEndpoints(f)
}
