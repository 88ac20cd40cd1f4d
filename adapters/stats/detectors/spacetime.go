package detectors

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// radiusSteps is the number of candidate radii scanned per center.
const radiusSteps = 10

// minScanRadiusKM is the smallest candidate radius.
const minScanRadiusKM = 10.0

// SpaceTimeConfig configures the scan-statistic cluster detector.
type SpaceTimeConfig struct {
	BaselineRate float64
	// Alpha is the significance level; zero defaults to 0.05.
	Alpha float64
	// MaxRadiusKM caps the spatial scan radius; zero defaults to 100.
	MaxRadiusKM float64
	// MaxTimeWindowDays caps the temporal window; zero defaults to 14.
	MaxTimeWindowDays int
}

// GeoCase is a single geolocated observation fed to the detector.
type GeoCase struct {
	Date     core.Date    `json:"date"`
	Location epi.GeoPoint `json:"location"`
	Positive bool         `json:"positive"`
}

// ClusterFinding is one significant spatial cluster.
type ClusterFinding struct {
	Center             epi.GeoPoint `json:"center"`
	RadiusKM           float64      `json:"radius_km"`
	StartDate          core.Date    `json:"start_date"`
	EndDate            core.Date    `json:"end_date"`
	TotalCases         int          `json:"total_cases"`
	Positives          int          `json:"positives"`
	Expected           float64      `json:"expected"`
	ObservedRate       float64      `json:"observed_rate"`
	RelativeRisk       float64      `json:"relative_risk"`
	LogLikelihoodRatio float64      `json:"log_likelihood_ratio"`
	PValue             float64      `json:"p_value"`
	DetectionDate      time.Time    `json:"detection_date"`
}

// SpaceTimeParameters echoes the effective configuration in results.
type SpaceTimeParameters struct {
	BaselineRate      float64 `json:"baseline_rate"`
	Alpha             float64 `json:"alpha"`
	MaxRadiusKM       float64 `json:"max_radius_km"`
	MaxTimeWindowDays int     `json:"max_time_window_days"`
}

// SpaceTimeResult is the outcome of analyzing a batch of geolocated cases.
type SpaceTimeResult struct {
	Algorithm      string              `json:"algorithm"`
	DetectionLevel epi.DetectionLevel  `json:"detection_level"`
	Clusters       []ClusterFinding    `json:"clusters"`
	Parameters     SpaceTimeParameters `json:"parameters"`
	CaseCount      int                 `json:"case_count"`
}

// SpaceTimeDetector finds geographic clusters of elevated positive rate with
// a discrete scan-statistic approximation: every distinct observed location
// is a candidate center, scanned over a fixed grid of radii, and each
// candidate circle is tested one-sided against the baseline rate. Cost is
// O(locations x radii x cases) per detection; bound it by limiting the case
// window or the radius. Not safe for concurrent use.
type SpaceTimeDetector struct {
	baselineRate      float64
	alpha             float64
	maxRadiusKM       float64
	maxTimeWindowDays int

	cases    []GeoCase
	clusters []ClusterFinding
}

// NewSpaceTimeDetector validates the configuration and builds a detector.
func NewSpaceTimeDetector(cfg SpaceTimeConfig) (*SpaceTimeDetector, error) {
	if cfg.BaselineRate <= 0 || cfg.BaselineRate >= 1 {
		return nil, core.NewConfigError("baseline_rate", "must be strictly between 0 and 1")
	}
	alpha := cfg.Alpha
	if alpha == 0 {
		alpha = 0.05
	}
	if alpha <= 0 || alpha >= 1 {
		return nil, core.NewConfigError("alpha", "must be strictly between 0 and 1")
	}
	maxRadius := cfg.MaxRadiusKM
	if maxRadius == 0 {
		maxRadius = 100.0
	}
	if maxRadius <= 0 {
		return nil, core.NewConfigError("max_radius_km", "must be positive")
	}
	window := cfg.MaxTimeWindowDays
	if window == 0 {
		window = 14
	}
	if window < 1 {
		return nil, core.NewConfigError("max_time_window_days", "must be at least 1")
	}
	return &SpaceTimeDetector{
		baselineRate:      cfg.BaselineRate,
		alpha:             alpha,
		maxRadiusKM:       maxRadius,
		maxTimeWindowDays: window,
	}, nil
}

// Name returns the algorithm identifier
func (d *SpaceTimeDetector) Name() string { return AlgorithmSpaceTime }

// AddCase accumulates one geolocated observation
func (d *SpaceTimeDetector) AddCase(date core.Date, location epi.GeoPoint, positive bool) {
	d.cases = append(d.cases, GeoCase{Date: date, Location: location, Positive: positive})
}

// CaseCount returns the number of accumulated observations
func (d *SpaceTimeDetector) CaseCount() int { return len(d.cases) }

// Clusters returns the findings of the most recent detection
func (d *SpaceTimeDetector) Clusters() []ClusterFinding { return d.clusters }

// DetectClusters scans for clusters using today as the reference date.
func (d *SpaceTimeDetector) DetectClusters() []ClusterFinding {
	return d.DetectClustersAt(core.Today())
}

// DetectClustersAt scans the accumulated cases within the time window ending
// at the reference date. The result is a pure function of accumulated state
// and the reference date; findings are sorted by log-likelihood ratio,
// highest first, and stored as the detector's current clusters.
func (d *SpaceTimeDetector) DetectClustersAt(reference core.Date) []ClusterFinding {
	if len(d.cases) == 0 {
		d.clusters = nil
		return nil
	}

	minDate := reference.AddDays(-d.maxTimeWindowDays)
	recent := make([]GeoCase, 0, len(d.cases))
	for _, c := range d.cases {
		if !c.Date.Before(minDate) {
			recent = append(recent, c)
		}
	}
	if len(recent) == 0 {
		d.clusters = nil
		return nil
	}

	// Candidate centers in first-seen order so repeated detections are
	// deterministic.
	seen := make(map[epi.GeoPoint]bool)
	centers := make([]epi.GeoPoint, 0, len(recent))
	for _, c := range recent {
		if !seen[c.Location] {
			seen[c.Location] = true
			centers = append(centers, c.Location)
		}
	}

	chi2 := distuv.ChiSquared{K: 1}
	step := (d.maxRadiusKM - minScanRadiusKM) / float64(radiusSteps-1)

	var findings []ClusterFinding
	for _, center := range centers {
		for i := 0; i < radiusSteps; i++ {
			radius := minScanRadiusKM + float64(i)*step

			var members []GeoCase
			for _, c := range recent {
				if Haversine(center, c.Location) <= radius {
					members = append(members, c)
				}
			}
			if len(members) == 0 {
				continue
			}

			total := len(members)
			positives := 0
			for _, c := range members {
				if c.Positive {
					positives++
				}
			}

			llr := d.logLikelihoodRatio(positives, total)
			if llr <= 0 {
				continue
			}

			p := 1 - chi2.CDF(2*llr)
			if p > d.alpha {
				continue
			}

			start, end := members[0].Date, members[0].Date
			for _, c := range members[1:] {
				if c.Date.Before(start) {
					start = c.Date
				}
				if c.Date.After(end) {
					end = c.Date
				}
			}

			observedRate := float64(positives) / float64(total)
			findings = append(findings, ClusterFinding{
				Center:             center,
				RadiusKM:           radius,
				StartDate:          start,
				EndDate:            end,
				TotalCases:         total,
				Positives:          positives,
				Expected:           float64(total) * d.baselineRate,
				ObservedRate:       observedRate,
				RelativeRisk:       observedRate / d.baselineRate,
				LogLikelihoodRatio: llr,
				PValue:             p,
				DetectionDate:      time.Now(),
			})
		}
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].LogLikelihoodRatio > findings[j].LogLikelihoodRatio
	})

	d.clusters = findings
	return findings
}

// logLikelihoodRatio computes the one-sided binomial LLR for a candidate
// circle. A circle at or below the baseline rate scores zero and is
// rejected; only elevated rates denote outbreaks.
func (d *SpaceTimeDetector) logLikelihoodRatio(positives, total int) float64 {
	if positives == 0 {
		return 0
	}
	if positives == total {
		return float64(total) * math.Log(1/d.baselineRate)
	}
	observedRate := float64(positives) / float64(total)
	if observedRate <= d.baselineRate {
		return 0
	}
	negatives := float64(total - positives)
	return float64(positives)*math.Log(observedRate/d.baselineRate) +
		negatives*math.Log((1-observedRate)/(1-d.baselineRate))
}

// riskLevelOf maps the best relative risk among findings to a level. The
// tiering is independent of the alpha significance test; both gate the
// final level.
func riskLevelOf(findings []ClusterFinding) epi.DetectionLevel {
	level := epi.LevelNormal
	for _, f := range findings {
		switch {
		case f.RelativeRisk > 3.0:
			return epi.LevelOutbreak
		case f.RelativeRisk > 2.0:
			level = epi.MaxLevel(level, epi.LevelWarning)
		case f.RelativeRisk > 1.5:
			level = epi.MaxLevel(level, epi.LevelAlert)
		}
	}
	return level
}

// Analyze ingests a batch of geolocated records and runs a detection with
// today as the reference date.
func (d *SpaceTimeDetector) Analyze(data []GeoCase) SpaceTimeResult {
	for _, c := range data {
		d.AddCase(c.Date, c.Location, c.Positive)
	}

	findings := d.DetectClusters()

	return SpaceTimeResult{
		Algorithm:      d.Name(),
		DetectionLevel: riskLevelOf(findings),
		Clusters:       findings,
		Parameters:     d.parameters(),
		CaseCount:      len(d.cases),
	}
}

func (d *SpaceTimeDetector) parameters() SpaceTimeParameters {
	return SpaceTimeParameters{
		BaselineRate:      d.baselineRate,
		Alpha:             d.alpha,
		MaxRadiusKM:       d.maxRadiusKM,
		MaxTimeWindowDays: d.maxTimeWindowDays,
	}
}

// Status reports the live detector state and the strongest recent findings.
func (d *SpaceTimeDetector) Status() Status {
	recentCount := 0
	minDate := core.Today().AddDays(-d.maxTimeWindowDays)
	for _, c := range d.cases {
		if !c.Date.Before(minDate) {
			recentCount++
		}
	}

	recent := d.clusters
	if len(recent) > 5 {
		recent = recent[:5]
	}

	return Status{
		Algorithm:      d.Name(),
		DetectionLevel: riskLevelOf(d.clusters),
		CurrentStatistics: map[string]interface{}{
			"total_cases":       len(d.cases),
			"recent_cases":      recentCount,
			"clusters_detected": len(d.clusters),
		},
		Parameters: map[string]interface{}{
			"baseline_rate":        d.baselineRate,
			"alpha":                d.alpha,
			"max_radius_km":        d.maxRadiusKM,
			"max_time_window_days": d.maxTimeWindowDays,
		},
		Recent: recent,
	}
}
