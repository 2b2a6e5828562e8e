package fl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Exporter writes run histories as JSON and global models as CBOR into a
// directory, one file each per run, for offline reporting.
type Exporter struct {
	dir string
	mu  sync.RWMutex
}

func NewExporter(dir string) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	return &Exporter{dir: dir}, nil
}

func (e *Exporter) SaveHistory(runID string, h RunHistory) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, err := fileName("history", runID, "json")
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	if err := os.WriteFile(filepath.Join(e.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write history file: %w", err)
	}

	return nil
}

func (e *Exporter) LoadHistory(runID string) (RunHistory, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name, err := fileName("history", runID, "json")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var h RunHistory
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}

	return h, nil
}

func (e *Exporter) SaveModel(runID string, p ParameterSet) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	name, err := fileName("model", runID, "cbor")
	if err != nil {
		return err
	}
	data, err := MarshalParameters(p)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(filepath.Join(e.dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (e *Exporter) LoadModel(runID string) (ParameterSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	name, err := fileName("model", runID, "cbor")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	return UnmarshalParameters(data)
}

func fileName(kind, runID, ext string) (string, error) {
	id := sanitizeID(runID)
	if id == "" {
		return "", fmt.Errorf("invalid run id: %q", runID)
	}

	return fmt.Sprintf("%s_%s.%s", kind, id, ext), nil
}

// sanitizeID keeps only characters that are safe in a file name.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(id) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
