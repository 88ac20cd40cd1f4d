package ports

import (
	"context"
	"encoding/json"
	"time"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// DetectionResult is the stored envelope for one algorithm's latest output.
// Payload carries the full algorithm-specific result document.
type DetectionResult struct {
	Algorithm      string             `json:"algorithm"`
	DetectionLevel epi.DetectionLevel `json:"detection_level"`
	Timestamp      time.Time          `json:"timestamp"`
	Payload        json.RawMessage    `json:"payload,omitempty"`
}

// ClusterStore persists cluster entities and per-algorithm detection
// results. Create is an upsert; Update of a missing id fails with a
// not-found error. Only the latest result per algorithm is retained, which
// bounds memory for long-running processes.
type ClusterStore interface {
	Create(ctx context.Context, cluster *epi.Cluster) error
	Get(ctx context.Context, id core.ClusterID) (*epi.Cluster, error)
	GetAll(ctx context.Context) ([]*epi.Cluster, error)
	Update(ctx context.Context, cluster *epi.Cluster) error
	Delete(ctx context.Context, id core.ClusterID) (bool, error)

	FindByDiseaseType(ctx context.Context, diseaseType epi.DiseaseType) ([]*epi.Cluster, error)
	FindActive(ctx context.Context) ([]*epi.Cluster, error)
	FindByDateRange(ctx context.Context, start, end core.Date) ([]*epi.Cluster, error)
	FindByCaseID(ctx context.Context, caseID core.CaseID) ([]*epi.Cluster, error)

	StoreDetectionResult(ctx context.Context, algorithmID string, result DetectionResult) error
	GetDetectionResult(ctx context.Context, algorithmID string) (*DetectionResult, error)
	GetAllDetectionResults(ctx context.Context) (map[string]DetectionResult, error)
}
