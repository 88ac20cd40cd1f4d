package detectors

import (
	"epiwatch/domain/epi"
)

// Decision values emitted by the sequential detectors.
const (
	DecisionContinue   = "continue"
	DecisionIncrease   = "increase"
	DecisionDecrease   = "decrease"
	DecisionOutbreak   = "outbreak"
	DecisionNoOutbreak = "no_outbreak"
	DecisionCompleted  = "completed"
)

// Algorithm identifiers, used both in result envelopes and as store keys.
const (
	AlgorithmCUSUM           = "cusum"
	AlgorithmGroupSequential = "group_sequential"
	AlgorithmSpaceTime       = "space_time_cluster"
)

// Algorithm is implemented by every outbreak detection algorithm. Analyze
// methods are algorithm-specific (each consumes a different projection of
// the case data), so only live status reporting is shared.
type Algorithm interface {
	Name() string
	Status() Status
}

// Status reports the live state of a detector between batches.
type Status struct {
	Algorithm         string                 `json:"algorithm"`
	DetectionLevel    epi.DetectionLevel     `json:"detection_level"`
	CurrentStatistics map[string]interface{} `json:"current_statistics"`
	Parameters        map[string]interface{} `json:"parameters"`
	Recent            interface{}            `json:"recent,omitempty"`
}
