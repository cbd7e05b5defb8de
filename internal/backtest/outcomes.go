package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samayp01/polyarb-engine/internal/models"
)

// outcomesFile is the persisted shape of the market outcome table.
type outcomesFile struct {
	Outcomes map[string]models.Outcome `json:"outcomes"`
}

// SaveOutcomes persists the market outcome table derived during a graph build.
func SaveOutcomes(path string, outcomes map[string]models.Outcome) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	data, err := json.MarshalIndent(outcomesFile{Outcomes: outcomes}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write outcomes file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename outcomes file: %w", err)
	}
	return nil
}

// LoadOutcomes restores a persisted outcome table. A missing file yields an
// empty table, not an error.
func LoadOutcomes(path string) (map[string]models.Outcome, error) {
	tempPath := path + ".tmp"
	if _, err := os.Stat(tempPath); err == nil {
		_ = os.Remove(tempPath)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return make(map[string]models.Outcome), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read outcomes file: %w", err)
	}

	var file outcomesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcomes: %w", err)
	}
	if file.Outcomes == nil {
		file.Outcomes = make(map[string]models.Outcome)
	}
	return file.Outcomes, nil
}
