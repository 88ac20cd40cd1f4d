package detectors

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// Boundary types for the group sequential detector.
const (
	BoundaryOBrienFleming = "obrien_fleming"
	BoundaryPocock        = "pocock"
)

// GroupSequentialConfig configures a staged hypothesis test against a
// baseline positive rate.
type GroupSequentialConfig struct {
	BaselineRate float64
	EffectSize   float64
	// MaxStages is the number of analysis stages; zero defaults to 5.
	MaxStages int
	// Alpha is the type I error rate; zero defaults to 0.05.
	Alpha float64
	// BoundaryType selects the efficacy boundary shape; empty defaults
	// to O'Brien-Fleming.
	BoundaryType string
}

// StageResult records one completed analysis stage.
type StageResult struct {
	Stage               int       `json:"stage"`
	Positives           int       `json:"positives"`
	Total               int       `json:"total"`
	CumulativePositives int       `json:"cumulative_positives"`
	CumulativeTotal     int       `json:"cumulative_total"`
	ObservedRate        float64   `json:"observed_rate"`
	ZStatistic          float64   `json:"z_statistic"`
	PValue              float64   `json:"p_value"`
	Boundary            float64   `json:"boundary"`
	Timestamp           time.Time `json:"timestamp"`
}

// Batch is one {positives, total} count pair fed to Analyze.
type Batch struct {
	Positives int `json:"positives"`
	Total     int `json:"total"`
}

// GroupSequentialStep is one entry of an Analyze result series.
type GroupSequentialStep struct {
	Positives  int     `json:"positives"`
	Total      int     `json:"total"`
	Decision   string  `json:"decision"`
	ZStatistic float64 `json:"z_statistic"`
	PValue     float64 `json:"p_value"`
}

// GroupSequentialParameters echoes the effective configuration in results.
type GroupSequentialParameters struct {
	BaselineRate float64   `json:"baseline_rate"`
	EffectSize   float64   `json:"effect_size"`
	BoundaryType string    `json:"boundary_type"`
	Alpha        float64   `json:"alpha"`
	Boundaries   []float64 `json:"boundaries"`
}

// GroupSequentialResult is the outcome of analyzing a sequence of batches.
type GroupSequentialResult struct {
	Algorithm      string                    `json:"algorithm"`
	DetectionLevel epi.DetectionLevel        `json:"detection_level"`
	CurrentStage   int                       `json:"current_stage"`
	MaxStages      int                       `json:"max_stages"`
	Results        []GroupSequentialStep     `json:"results"`
	Parameters     GroupSequentialParameters `json:"parameters"`
}

// GroupSequentialDetector runs a group sequential test against a baseline
// positive rate with pre-computed efficacy boundaries. CurrentStage advances
// by one per update and never exceeds MaxStages. Not safe for concurrent use.
type GroupSequentialDetector struct {
	baselineRate float64
	effectSize   float64
	maxStages    int
	alpha        float64
	boundaryType string

	efficacyBoundaries []float64

	currentStage        int
	cumulativePositives int
	cumulativeTotal     int
	stageResults        []StageResult
}

// NewGroupSequentialDetector validates the configuration, pre-computes the
// efficacy boundaries, and builds a detector. Configuration errors are
// fatal: an invalid boundary type or stage count never silently defaults.
func NewGroupSequentialDetector(cfg GroupSequentialConfig) (*GroupSequentialDetector, error) {
	if cfg.BaselineRate <= 0 || cfg.BaselineRate >= 1 {
		return nil, core.NewConfigError("baseline_rate", "must be strictly between 0 and 1")
	}
	maxStages := cfg.MaxStages
	if maxStages == 0 {
		maxStages = 5
	}
	if maxStages < 1 {
		return nil, core.NewConfigError("max_stages", "must be at least 1")
	}
	alpha := cfg.Alpha
	if alpha == 0 {
		alpha = 0.05
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.NewConfigError("alpha", "must be strictly between 0 and 1")
	}
	boundaryType := cfg.BoundaryType
	if boundaryType == "" {
		boundaryType = BoundaryOBrienFleming
	}

	d := &GroupSequentialDetector{
		baselineRate: cfg.BaselineRate,
		effectSize:   cfg.EffectSize,
		maxStages:    maxStages,
		alpha:        alpha,
		boundaryType: boundaryType,
	}

	boundaries, err := calculateBoundaries(boundaryType, maxStages, alpha)
	if err != nil {
		return nil, err
	}
	d.efficacyBoundaries = boundaries

	return d, nil
}

// calculateBoundaries computes per-stage z boundaries. O'Brien-Fleming
// boundaries are conservative early and relax with the information fraction;
// Pocock boundaries are constant across stages.
func calculateBoundaries(boundaryType string, maxStages int, alpha float64) ([]float64, error) {
	normal := distuv.Normal{Mu: 0, Sigma: 1}
	boundaries := make([]float64, 0, maxStages)

	switch boundaryType {
	case BoundaryOBrienFleming:
		c := normal.Quantile(1 - alpha/2)
		for i := 1; i <= maxStages; i++ {
			t := float64(i) / float64(maxStages)
			boundaries = append(boundaries, c/math.Sqrt(t))
		}
	case BoundaryPocock:
		adjustedAlpha := alpha / float64(maxStages)
		boundary := normal.Quantile(1 - adjustedAlpha/2)
		for i := 0; i < maxStages; i++ {
			boundaries = append(boundaries, boundary)
		}
	default:
		return nil, core.NewConfigError("boundary_type", boundaryType)
	}

	return boundaries, nil
}

// Name returns the algorithm identifier
func (d *GroupSequentialDetector) Name() string { return AlgorithmGroupSequential }

// CurrentStage returns the number of completed stages
func (d *GroupSequentialDetector) CurrentStage() int { return d.currentStage }

// Boundaries returns the pre-computed efficacy boundaries
func (d *GroupSequentialDetector) Boundaries() []float64 {
	out := make([]float64, len(d.efficacyBoundaries))
	copy(out, d.efficacyBoundaries)
	return out
}

// Update feeds one stage of counts and returns (decision, z, p). Once the
// stage limit is reached every further call returns ("completed", 0, 1)
// without touching state.
func (d *GroupSequentialDetector) Update(positives, total int) (string, float64, float64) {
	if d.currentStage >= d.maxStages {
		return DecisionCompleted, 0, 1
	}

	d.cumulativePositives += positives
	d.cumulativeTotal += total

	if d.cumulativeTotal == 0 {
		return DecisionContinue, 0, 1
	}

	observedRate := float64(d.cumulativePositives) / float64(d.cumulativeTotal)
	se := math.Sqrt(d.baselineRate * (1 - d.baselineRate) / float64(d.cumulativeTotal))

	z := 0.0
	if se > 0 {
		z = (observedRate - d.baselineRate) / se
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1}
	p := 1 - normal.CDF(z)

	boundary := d.efficacyBoundaries[d.currentStage]

	d.stageResults = append(d.stageResults, StageResult{
		Stage:               d.currentStage + 1,
		Positives:           positives,
		Total:               total,
		CumulativePositives: d.cumulativePositives,
		CumulativeTotal:     d.cumulativeTotal,
		ObservedRate:        observedRate,
		ZStatistic:          z,
		PValue:              p,
		Boundary:            boundary,
		Timestamp:           time.Now(),
	})

	decision := DecisionContinue
	if z >= boundary {
		decision = DecisionOutbreak
	}

	d.currentStage++

	if d.currentStage >= d.maxStages && decision == DecisionContinue {
		decision = DecisionNoOutbreak
	}

	return decision, z, p
}

// Analyze runs Update over a list of batches. The level is outbreak when
// any stage signalled; otherwise warning or alert when any recorded z came
// within 70% or 50% of the next boundary while stages remain.
func (d *GroupSequentialDetector) Analyze(batches []Batch) GroupSequentialResult {
	steps := make([]GroupSequentialStep, 0, len(batches))
	sawOutbreak := false

	for _, batch := range batches {
		decision, z, p := d.Update(batch.Positives, batch.Total)
		steps = append(steps, GroupSequentialStep{
			Positives:  batch.Positives,
			Total:      batch.Total,
			Decision:   decision,
			ZStatistic: z,
			PValue:     p,
		})
		if decision == DecisionOutbreak {
			sawOutbreak = true
		}
	}

	level := epi.LevelNormal
	if sawOutbreak {
		level = epi.LevelOutbreak
	} else if d.currentStage < d.maxStages {
		next := d.efficacyBoundaries[d.currentStage]
		for _, sr := range d.stageResults {
			if sr.ZStatistic >= next*0.7 {
				level = epi.LevelWarning
				break
			}
		}
		if level == epi.LevelNormal {
			for _, sr := range d.stageResults {
				if sr.ZStatistic >= next*0.5 {
					level = epi.LevelAlert
					break
				}
			}
		}
	}

	return GroupSequentialResult{
		Algorithm:      d.Name(),
		DetectionLevel: level,
		CurrentStage:   d.currentStage,
		MaxStages:      d.maxStages,
		Results:        steps,
		Parameters: GroupSequentialParameters{
			BaselineRate: d.baselineRate,
			EffectSize:   d.effectSize,
			BoundaryType: d.boundaryType,
			Alpha:        d.alpha,
			Boundaries:   d.Boundaries(),
		},
	}
}

// level derives the live detection level from the most recent stage
func (d *GroupSequentialDetector) level() epi.DetectionLevel {
	if d.currentStage == 0 || len(d.stageResults) == 0 {
		return epi.LevelNormal
	}
	last := d.stageResults[len(d.stageResults)-1]
	lastBoundary := d.efficacyBoundaries[d.currentStage-1]
	switch {
	case last.ZStatistic >= lastBoundary:
		return epi.LevelOutbreak
	case last.ZStatistic >= lastBoundary*0.7:
		return epi.LevelWarning
	case last.ZStatistic >= lastBoundary*0.5:
		return epi.LevelAlert
	}
	return epi.LevelNormal
}

// Status reports the live detector state and the full stage history.
func (d *GroupSequentialDetector) Status() Status {
	current := map[string]interface{}{
		"current_stage":        d.currentStage,
		"max_stages":           d.maxStages,
		"cumulative_positives": d.cumulativePositives,
		"cumulative_total":     d.cumulativeTotal,
	}
	if d.cumulativeTotal > 0 {
		current["observed_rate"] = float64(d.cumulativePositives) / float64(d.cumulativeTotal)
	}

	return Status{
		Algorithm:         d.Name(),
		DetectionLevel:    d.level(),
		CurrentStatistics: current,
		Parameters: map[string]interface{}{
			"baseline_rate": d.baselineRate,
			"effect_size":   d.effectSize,
			"boundary_type": d.boundaryType,
			"alpha":         d.alpha,
			"boundaries":    d.Boundaries(),
		},
		Recent: d.stageResults,
	}
}
