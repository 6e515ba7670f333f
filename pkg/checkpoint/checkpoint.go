// Package checkpoint persists finished rounds and model versions as JSON
// files so a run's progress can be inspected after the fact. Only completed
// rounds are written; in-flight state is never persisted.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/absmach/fedsim/orchestrator"
	"github.com/absmach/fedsim/params"
)

type Store struct {
	roundsDir string
	modelsDir string
	mu        sync.RWMutex
}

func NewStore(roundsDir, modelsDir string) (*Store, error) {
	if err := os.MkdirAll(roundsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create rounds directory: %w", err)
	}
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &Store{
		roundsDir: roundsDir,
		modelsDir: modelsDir,
	}, nil
}

func (s *Store) SaveRound(runID string, record orchestrator.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := sanitizeID(runID)
	if run == "" {
		return fmt.Errorf("invalid run id: %s", runID)
	}

	file := filepath.Join(s.roundsDir, fmt.Sprintf("%s_round_%04d.json", run, record.Round))
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal round record: %w", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write round file: %w", err)
	}

	return nil
}

func (s *Store) LoadRound(runID string, round int) (orchestrator.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run := sanitizeID(runID)
	if run == "" {
		return orchestrator.RoundRecord{}, fmt.Errorf("invalid run id: %s", runID)
	}

	file := filepath.Join(s.roundsDir, fmt.Sprintf("%s_round_%04d.json", run, round))
	data, err := os.ReadFile(file)
	if err != nil {
		return orchestrator.RoundRecord{}, fmt.Errorf("failed to read round file: %w", err)
	}

	var record orchestrator.RoundRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return orchestrator.RoundRecord{}, fmt.Errorf("failed to unmarshal round record: %w", err)
	}

	return record, nil
}

func (s *Store) SaveModel(version int, p params.Parameters) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	file := filepath.Join(s.modelsDir, fmt.Sprintf("model_v%d.json", version))
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}

	return nil
}

func (s *Store) LoadModel(version int) (params.Parameters, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	file := filepath.Join(s.modelsDir, fmt.Sprintf("model_v%d.json", version))
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var p params.Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return p, nil
}

func (s *Store) ListModels() ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.modelsDir)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "model_v%d.json", &version); err == nil {
			versions = append(versions, version)
		}
	}
	sort.Ints(versions)

	return versions, nil
}

// sanitizeID strips everything but alphanumerics, hyphens, and underscores so
// an id is always safe to use in a filename.
func sanitizeID(id string) string {
	var out strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			out.WriteRune(r)
		}
	}

	return out.String()
}
