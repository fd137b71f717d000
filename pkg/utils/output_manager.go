package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// ResultsFileName is the JSONL file every run writes into its directory
const ResultsFileName = "results.jsonl"

// OutputManager handles output file organization and path management
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// CreateRunOutputDir creates a directory named after the run ID
func (om *OutputManager) CreateRunOutputDir(runID string) (string, error) {
	runDir := filepath.Join(om.BaseOutputDir, filepath.Base(runID))

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}

	return runDir, nil
}

// GetOutputFilePath generates a full path for an output file, creating the run directory
func (om *OutputManager) GetOutputFilePath(runID, fileName string) (string, error) {
	runDir, err := om.CreateRunOutputDir(runID)
	if err != nil {
		return "", err
	}

	// Clean the filename to remove any path separators
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// ResultsPath is where a run's JSONL file lives, without creating anything
func (om *OutputManager) ResultsPath(runID string) string {
	return filepath.Join(om.BaseOutputDir, filepath.Base(runID), ResultsFileName)
}

// GetDownloadURL generates a download URL for a run's results
func (om *OutputManager) GetDownloadURL(runID string) string {
	return fmt.Sprintf("/api/v1/runs/%s/download", filepath.Base(runID))
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
