package detectors

import (
	"math"
	"time"

	"github.com/montanaflynn/stats"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// historyCap bounds the retained per-observation history.
const historyCap = 1000

// varianceFloor prevents a degenerate zero variance from blowing up the
// standardized statistic.
const varianceFloor = 0.0001

// CUSUMConfig configures a cumulative-sum detector.
type CUSUMConfig struct {
	// BaselineMean is the expected process mean under no outbreak.
	BaselineMean float64
	// TargetShift is the minimum shift, in raw units, worth detecting.
	TargetShift float64
	// StdDev fixes the process standard deviation. When nil it is
	// estimated online from the observation stream.
	StdDev *float64
	// K is the reference value; zero defaults to TargetShift/2.
	K float64
	// H is the decision threshold; zero defaults to 5.
	H float64
	// ResetOnSignal zeroes the signalling accumulator after a decision.
	ResetOnSignal bool
}

// CUSUMObservation records a single update step.
type CUSUMObservation struct {
	N         int       `json:"n"`
	Value     float64   `json:"value"`
	Z         float64   `json:"z"`
	CusumPos  float64   `json:"cusum_pos"`
	CusumNeg  float64   `json:"cusum_neg"`
	Timestamp time.Time `json:"timestamp"`
}

// CUSUMStep is one entry of an Analyze result series.
type CUSUMStep struct {
	Value    float64 `json:"value"`
	CusumPos float64 `json:"cusum_pos"`
	CusumNeg float64 `json:"cusum_neg"`
	Decision string  `json:"decision"`
}

// CUSUMParameters echoes the effective configuration in results.
type CUSUMParameters struct {
	BaselineMean float64 `json:"baseline_mean"`
	TargetShift  float64 `json:"target_shift"`
	K            float64 `json:"k"`
	H            float64 `json:"h"`
	StdDev       float64 `json:"std_dev"`
}

// CUSUMResult is the outcome of analyzing a series.
type CUSUMResult struct {
	Algorithm      string             `json:"algorithm"`
	DetectionLevel epi.DetectionLevel `json:"detection_level"`
	Results        []CUSUMStep        `json:"results"`
	Parameters     CUSUMParameters    `json:"parameters"`
}

// CUSUMDetector monitors a scalar process for sustained shifts in its mean.
// State accumulates across calls for the lifetime of the detector; it is not
// safe for concurrent use.
type CUSUMDetector struct {
	baselineMean  float64
	targetShift   float64
	k             float64
	h             float64
	resetOnSignal bool

	stdDev      float64
	stdDevFixed bool

	// Welford running moments for online std-dev estimation
	n    int
	mean float64
	m2   float64

	cusumPos float64
	cusumNeg float64
	history  *ringBuffer[CUSUMObservation]
}

// NewCUSUMDetector validates the configuration and builds a detector.
// Configuration errors are fatal by design: a misconfigured baseline must
// never silently default.
func NewCUSUMDetector(cfg CUSUMConfig) (*CUSUMDetector, error) {
	if cfg.TargetShift <= 0 {
		return nil, core.NewConfigError("target_shift", "must be positive")
	}
	k := cfg.K
	if k == 0 {
		k = cfg.TargetShift / 2
	}
	if k < 0 {
		return nil, core.NewConfigError("k", "must be non-negative")
	}
	h := cfg.H
	if h == 0 {
		h = 5.0
	}
	if h <= 0 {
		return nil, core.NewConfigError("h", "must be positive")
	}
	d := &CUSUMDetector{
		baselineMean:  cfg.BaselineMean,
		targetShift:   cfg.TargetShift,
		k:             k,
		h:             h,
		resetOnSignal: cfg.ResetOnSignal,
		history:       newRing[CUSUMObservation](historyCap),
	}
	if cfg.StdDev != nil {
		if *cfg.StdDev <= 0 {
			return nil, core.NewConfigError("std_dev", "must be positive when provided")
		}
		d.stdDev = *cfg.StdDev
		d.stdDevFixed = true
	}
	return d, nil
}

// Name returns the algorithm identifier
func (d *CUSUMDetector) Name() string { return AlgorithmCUSUM }

// Update feeds one observation and returns (decision, cusum_pos, cusum_neg).
// Decision is "increase" when the upper statistic crosses h, "decrease" for
// the lower statistic, otherwise "continue".
func (d *CUSUMDetector) Update(value float64) (string, float64, float64) {
	d.n++
	delta := value - d.mean
	d.mean += delta / float64(d.n)
	d.m2 += delta * (value - d.mean)

	if !d.stdDevFixed {
		if d.n > 1 {
			variance := d.m2 / float64(d.n-1)
			d.stdDev = math.Sqrt(math.Max(varianceFloor, variance))
		} else {
			// Until a second observation arrives the estimate defaults
			// to 1.0, which damps the very first standardized value.
			d.stdDev = 1.0
		}
	}

	z := 0.0
	if d.stdDev > 0 {
		z = (value - d.baselineMean) / d.stdDev
	}

	d.cusumPos = math.Max(0, d.cusumPos+z-d.k)
	d.cusumNeg = math.Max(0, d.cusumNeg-z-d.k)

	d.history.Push(CUSUMObservation{
		N:         d.n,
		Value:     value,
		Z:         z,
		CusumPos:  d.cusumPos,
		CusumNeg:  d.cusumNeg,
		Timestamp: time.Now(),
	})

	decision := DecisionContinue
	if d.cusumPos >= d.h {
		decision = DecisionIncrease
		if d.resetOnSignal {
			d.cusumPos = 0
		}
	} else if d.cusumNeg >= d.h {
		decision = DecisionDecrease
		if d.resetOnSignal {
			d.cusumNeg = 0
		}
	}

	return decision, d.cusumPos, d.cusumNeg
}

// Analyze runs Update over every value in order. The overall level is
// outbreak when any upward signal fired; downward shifts are informational
// only and never raise the level.
func (d *CUSUMDetector) Analyze(series []float64) CUSUMResult {
	steps := make([]CUSUMStep, 0, len(series))
	level := epi.LevelNormal

	for _, value := range series {
		decision, pos, neg := d.Update(value)
		steps = append(steps, CUSUMStep{
			Value:    value,
			CusumPos: pos,
			CusumNeg: neg,
			Decision: decision,
		})
		if decision == DecisionIncrease {
			level = epi.LevelOutbreak
		}
	}

	return CUSUMResult{
		Algorithm:      d.Name(),
		DetectionLevel: level,
		Results:        steps,
		Parameters:     d.parameters(),
	}
}

// level derives the live detection level from fractions of the threshold
func (d *CUSUMDetector) level() epi.DetectionLevel {
	switch {
	case d.cusumPos >= d.h:
		return epi.LevelOutbreak
	case d.cusumPos >= d.h*0.7:
		return epi.LevelWarning
	case d.cusumPos >= d.h*0.5:
		return epi.LevelAlert
	}
	return epi.LevelNormal
}

func (d *CUSUMDetector) parameters() CUSUMParameters {
	return CUSUMParameters{
		BaselineMean: d.baselineMean,
		TargetShift:  d.targetShift,
		K:            d.k,
		H:            d.h,
		StdDev:       d.stdDev,
	}
}

// RecentHistory returns up to n of the most recent update records,
// oldest first.
func (d *CUSUMDetector) RecentHistory(n int) []CUSUMObservation {
	return d.history.Last(n)
}

// Status reports the live detector state, including summary statistics of
// the retained observation window.
func (d *CUSUMDetector) Status() Status {
	current := map[string]interface{}{
		"cusum_pos": d.cusumPos,
		"cusum_neg": d.cusumNeg,
		"n":         d.n,
		"std_dev":   d.stdDev,
	}
	if d.n > 0 {
		recent := d.history.Last(d.history.Len())
		values := make([]float64, len(recent))
		for i, obs := range recent {
			values[i] = obs.Value
		}
		if mean, err := stats.Mean(values); err == nil {
			current["mean"] = mean
		}
		if median, err := stats.Median(values); err == nil {
			current["median"] = median
		}
		if max, err := stats.Max(values); err == nil {
			current["max"] = max
		}
	}

	return Status{
		Algorithm:      d.Name(),
		DetectionLevel: d.level(),
		CurrentStatistics: current,
		Parameters: map[string]interface{}{
			"baseline_mean": d.baselineMean,
			"target_shift":  d.targetShift,
			"k":             d.k,
			"h":             d.h,
		},
		Recent: d.history.Last(5),
	}
}
