// Package jsonstore provides an in-memory ClusterStore with optional
// JSON-file persistence. Every mutation rewrites the whole document so a
// reader never observes a partial write.
package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
	"epiwatch/ports"
)

// document is the persisted file layout.
type document struct {
	Clusters         []*epi.Cluster                   `json:"clusters"`
	DetectionResults map[string]ports.DetectionResult `json:"detection_results"`
	LastUpdated      time.Time                        `json:"last_updated"`
}

// Store keeps clusters and detection results in memory, flushing to a JSON
// file when a path is configured.
type Store struct {
	mu       sync.Mutex
	path     string
	clusters map[core.ClusterID]*epi.Cluster
	results  map[string]ports.DetectionResult
}

// New creates a store. An empty path means memory-only; otherwise existing
// state is loaded from the file when present.
func New(path string) (*Store, error) {
	s := &Store{
		path:     path,
		clusters: make(map[core.ClusterID]*epi.Cluster),
		results:  make(map[string]ports.DetectionResult),
	}
	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}

	for _, cluster := range doc.Clusters {
		s.clusters[cluster.ID] = cluster
	}
	if doc.DetectionResults != nil {
		s.results = doc.DetectionResults
	}
	return nil
}

// save flushes the whole document. Callers must hold the mutex.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	doc := document{
		Clusters:         make([]*epi.Cluster, 0, len(s.clusters)),
		DetectionResults: s.results,
		LastUpdated:      time.Now(),
	}
	for _, cluster := range s.clusters {
		doc.Clusters = append(doc.Clusters, cluster)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store document: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

// Create upserts a cluster, stamping timestamps when unset.
func (s *Store) Create(_ context.Context, cluster *epi.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if cluster.CreatedAt.IsZero() {
		cluster.CreatedAt = now
	}
	if cluster.UpdatedAt.IsZero() {
		cluster.UpdatedAt = now
	}
	s.clusters[cluster.ID] = cluster
	return s.save()
}

// Get returns a cluster by id.
func (s *Store) Get(_ context.Context, id core.ClusterID) (*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cluster, ok := s.clusters[id]
	if !ok {
		return nil, core.NewNotFoundError("cluster", id.String())
	}
	return cluster, nil
}

// GetAll returns every stored cluster.
func (s *Store) GetAll(_ context.Context) ([]*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(*epi.Cluster) bool { return true }), nil
}

// Update replaces an existing cluster; a missing id is an error.
func (s *Store) Update(_ context.Context, cluster *epi.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[cluster.ID]; !ok {
		return core.NewNotFoundError("cluster", cluster.ID.String())
	}
	cluster.UpdatedAt = time.Now()
	s.clusters[cluster.ID] = cluster
	return s.save()
}

// Delete removes a cluster, reporting whether it existed.
func (s *Store) Delete(_ context.Context, id core.ClusterID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[id]; !ok {
		return false, nil
	}
	delete(s.clusters, id)
	return true, s.save()
}

// collect filters clusters. Callers must hold the mutex.
func (s *Store) collect(match func(*epi.Cluster) bool) []*epi.Cluster {
	out := make([]*epi.Cluster, 0)
	for _, cluster := range s.clusters {
		if match(cluster) {
			out = append(out, cluster)
		}
	}
	return out
}

// FindByDiseaseType returns clusters for one disease.
func (s *Store) FindByDiseaseType(_ context.Context, diseaseType epi.DiseaseType) ([]*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(c *epi.Cluster) bool { return c.DiseaseType == diseaseType }), nil
}

// FindActive returns clusters that are not closed.
func (s *Store) FindActive(_ context.Context) ([]*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(c *epi.Cluster) bool { return c.IsActive() }), nil
}

// FindByDateRange returns clusters whose start date falls within
// [start, end] inclusive.
func (s *Store) FindByDateRange(_ context.Context, start, end core.Date) ([]*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(c *epi.Cluster) bool { return c.StartDate.Within(start, end) }), nil
}

// FindByCaseID returns clusters containing the case.
func (s *Store) FindByCaseID(_ context.Context, caseID core.CaseID) ([]*epi.Cluster, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collect(func(c *epi.Cluster) bool { return c.ContainsCase(caseID) }), nil
}

// StoreDetectionResult stores the latest result for an algorithm,
// overwriting any previous one.
func (s *Store) StoreDetectionResult(_ context.Context, algorithmID string, result ports.DetectionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Timestamp.IsZero() {
		result.Timestamp = time.Now()
	}
	s.results[algorithmID] = result
	return s.save()
}

// GetDetectionResult returns the latest stored result for an algorithm.
func (s *Store) GetDetectionResult(_ context.Context, algorithmID string) (*ports.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[algorithmID]
	if !ok {
		return nil, core.NewNotFoundError("detection result", algorithmID)
	}
	return &result, nil
}

// GetAllDetectionResults returns a copy of the latest result per algorithm.
func (s *Store) GetAllDetectionResults(_ context.Context) (map[string]ports.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]ports.DetectionResult, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out, nil
}

var _ ports.ClusterStore = (*Store)(nil)
