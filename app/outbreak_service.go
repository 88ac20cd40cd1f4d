// Package app wires the detector suite to the cluster store and exposes the
// operations callers drive the engine with.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"epiwatch/adapters/stats/detectors"
	"epiwatch/domain/core"
	"epiwatch/domain/epi"
	"epiwatch/internal"
	"epiwatch/internal/config"
	apperrors "epiwatch/internal/errors"
	"epiwatch/ports"
)

// DetectionReport is the outcome of one detection run across all configured
// algorithms.
type DetectionReport struct {
	DetectionLevel epi.DetectionLevel     `json:"detection_level"`
	Results        map[string]interface{} `json:"results"`
	Clusters       []*epi.Cluster         `json:"clusters,omitempty"`
	CasesAnalyzed  int                    `json:"cases_analyzed"`
	SkippedRecords int                    `json:"skipped_records"`
	Timestamp      time.Time              `json:"timestamp"`
}

// OutbreakSummary aggregates stored state over a recent window.
type OutbreakSummary struct {
	WindowDays     int                              `json:"window_days"`
	ActiveClusters int                              `json:"active_clusters"`
	TotalClusters  int                              `json:"total_clusters"`
	TotalCases     int                              `json:"total_cases"`
	RecentClusters []*epi.Cluster                   `json:"recent_clusters"`
	ByDiseaseType  map[epi.DiseaseType]int          `json:"by_disease_type"`
	ByRiskLevel    map[epi.RiskLevel]int            `json:"by_risk_level"`
	LatestResults  map[string]ports.DetectionResult `json:"latest_results"`
	OverallLevel   epi.DetectionLevel               `json:"overall_level"`
	GeneratedAt    time.Time                        `json:"generated_at"`
}

// EngineStatus is the live state of the detector suite plus the stored
// cluster load.
type EngineStatus struct {
	OverallLevel   epi.DetectionLevel          `json:"overall_level"`
	Detectors      map[string]detectors.Status `json:"detectors"`
	ActiveClusters int                         `json:"active_clusters"`
}

// dayCounts is the per-date aggregation fed to the temporal detectors.
type dayCounts struct {
	date      core.Date
	total     int
	positives int
}

// OutbreakService runs the detector suite over case batches, persists the
// latest result per algorithm, and manages cluster lifecycle. Detectors carry
// state across runs, matching a surveillance stream where each batch extends
// the same monitored series.
type OutbreakService struct {
	store  ports.ClusterStore
	cfg    config.DetectionConfig
	logger *internal.Logger

	cusum      *detectors.CUSUMDetector
	sequential *detectors.GroupSequentialDetector
	spacetime  *detectors.SpaceTimeDetector

	clusterSeq int
}

// NewOutbreakService validates the detection configuration and builds the
// configured detectors. When every detector is disabled the service falls
// back to the full default suite rather than running blind.
func NewOutbreakService(store ports.ClusterStore, cfg config.DetectionConfig, logger *internal.Logger) (*OutbreakService, error) {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	if cfg.CUSUM == nil && cfg.GroupSequential == nil && cfg.SpaceTime == nil {
		logger.Warn("no detectors configured, enabling default suite")
		cfg = config.DefaultDetection()
	}
	if cfg.MinRelativeRisk <= 0 {
		cfg.MinRelativeRisk = 1.2
	}

	s := &OutbreakService{
		store:  store,
		cfg:    cfg,
		logger: logger,
	}

	if cfg.CUSUM != nil {
		d, err := detectors.NewCUSUMDetector(detectors.CUSUMConfig{
			BaselineMean:  cfg.CUSUM.BaselineMean,
			TargetShift:   cfg.CUSUM.TargetShift,
			K:             cfg.CUSUM.K,
			H:             cfg.CUSUM.H,
			ResetOnSignal: cfg.CUSUM.ResetOnSignal,
		})
		if err != nil {
			return nil, fmt.Errorf("cusum detector: %w", err)
		}
		s.cusum = d
	}

	if cfg.GroupSequential != nil {
		d, err := detectors.NewGroupSequentialDetector(detectors.GroupSequentialConfig{
			BaselineRate: cfg.GroupSequential.BaselineRate,
			EffectSize:   cfg.GroupSequential.EffectSize,
			MaxStages:    cfg.GroupSequential.MaxStages,
			Alpha:        cfg.GroupSequential.Alpha,
			BoundaryType: cfg.GroupSequential.BoundaryType,
		})
		if err != nil {
			return nil, fmt.Errorf("group sequential detector: %w", err)
		}
		s.sequential = d
	}

	if cfg.SpaceTime != nil {
		d, err := detectors.NewSpaceTimeDetector(detectors.SpaceTimeConfig{
			BaselineRate:      cfg.SpaceTime.BaselineRate,
			Alpha:             cfg.SpaceTime.Alpha,
			MaxRadiusKM:       cfg.SpaceTime.MaxRadiusKM,
			MaxTimeWindowDays: cfg.SpaceTime.MaxTimeWindowDays,
		})
		if err != nil {
			return nil, fmt.Errorf("space-time detector: %w", err)
		}
		s.spacetime = d
	}

	return s, nil
}

// DetectOutbreaks runs every configured detector over a batch of case
// records. Records without a report date are skipped and counted, never
// fatal. The overall level is the most severe level any detector reported.
func (s *OutbreakService) DetectOutbreaks(ctx context.Context, cases []epi.CaseRecord) (*DetectionReport, error) {
	report := &DetectionReport{
		DetectionLevel: epi.LevelNormal,
		Results:        make(map[string]interface{}),
		Timestamp:      time.Now(),
	}

	valid := make([]epi.CaseRecord, 0, len(cases))
	for _, c := range cases {
		if c.ReportDate.IsZero() {
			report.SkippedRecords++
			continue
		}
		valid = append(valid, c)
	}
	report.CasesAnalyzed = len(valid)
	if report.SkippedRecords > 0 {
		s.logger.Warn("skipped %d case records without a report date", report.SkippedRecords)
	}

	// An empty batch never touches the detectors: they carry state, and
	// re-running them on nothing would replay old signals.
	if len(valid) == 0 {
		return report, nil
	}

	days := aggregateDaily(valid)

	if s.cusum != nil {
		rates := make([]float64, len(days))
		for i, d := range days {
			rates[i] = float64(d.positives) / float64(d.total)
		}
		result := s.cusum.Analyze(rates)
		report.Results[result.Algorithm] = result
		report.DetectionLevel = epi.MaxLevel(report.DetectionLevel, result.DetectionLevel)
		if err := s.storeResult(ctx, result.Algorithm, result.DetectionLevel, result); err != nil {
			return nil, err
		}
	}

	if s.sequential != nil {
		batches := make([]detectors.Batch, len(days))
		for i, d := range days {
			batches[i] = detectors.Batch{Positives: d.positives, Total: d.total}
		}
		result := s.sequential.Analyze(batches)
		report.Results[result.Algorithm] = result
		report.DetectionLevel = epi.MaxLevel(report.DetectionLevel, result.DetectionLevel)
		if err := s.storeResult(ctx, result.Algorithm, result.DetectionLevel, result); err != nil {
			return nil, err
		}
	}

	if s.spacetime != nil {
		geo := make([]detectors.GeoCase, 0, len(valid))
		for _, c := range valid {
			if !c.HasLocation() {
				continue
			}
			geo = append(geo, detectors.GeoCase{
				Date:     c.ReportDate,
				Location: *c.Location,
				Positive: c.IsPositive(),
			})
		}
		// A batch with no located cases skips the spatial run entirely.
		if len(geo) > 0 {
			result := s.spacetime.Analyze(geo)
			report.Results[result.Algorithm] = result
			report.DetectionLevel = epi.MaxLevel(report.DetectionLevel, result.DetectionLevel)
			if err := s.storeResult(ctx, result.Algorithm, result.DetectionLevel, result); err != nil {
				return nil, err
			}

			if s.cfg.AutoCreateClusters && len(result.Clusters) > 0 {
				created, err := s.createClustersFromFindings(ctx, result.Clusters, valid)
				if err != nil {
					return nil, err
				}
				report.Clusters = created
			}
		}
	}

	s.logger.Info("detection run complete: level=%s cases=%d skipped=%d clusters=%d",
		report.DetectionLevel, report.CasesAnalyzed, report.SkippedRecords, len(report.Clusters))

	return report, nil
}

// aggregateDaily buckets records per report date in chronological order.
func aggregateDaily(cases []epi.CaseRecord) []dayCounts {
	buckets := make(map[core.Date]*dayCounts)
	for _, c := range cases {
		bucket, ok := buckets[c.ReportDate]
		if !ok {
			bucket = &dayCounts{date: c.ReportDate}
			buckets[c.ReportDate] = bucket
		}
		bucket.total++
		if c.IsPositive() {
			bucket.positives++
		}
	}

	days := make([]dayCounts, 0, len(buckets))
	for _, bucket := range buckets {
		days = append(days, *bucket)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].date.Before(days[j].date) })
	return days
}

func (s *OutbreakService) storeResult(ctx context.Context, algorithm string, level epi.DetectionLevel, result interface{}) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal %s result: %w", algorithm, err)
	}
	if err := s.store.StoreDetectionResult(ctx, algorithm, ports.DetectionResult{
		Algorithm:      algorithm,
		DetectionLevel: level,
		Timestamp:      time.Now(),
		Payload:        payload,
	}); err != nil {
		return fmt.Errorf("failed to store %s result: %w", algorithm, err)
	}
	return nil
}

// createClustersFromFindings materializes stored clusters from significant
// spatial findings. Only findings at or above the relative-risk floor become
// clusters; membership is every analyzed case inside the finding's circle
// and date span, and a finding capturing no cases is dropped.
func (s *OutbreakService) createClustersFromFindings(ctx context.Context, findings []detectors.ClusterFinding, cases []epi.CaseRecord) ([]*epi.Cluster, error) {
	var created []*epi.Cluster

	for _, finding := range findings {
		if finding.RelativeRisk < s.cfg.MinRelativeRisk {
			continue
		}

		var members []epi.CaseRecord
		for _, c := range cases {
			if !c.HasLocation() {
				continue
			}
			if !c.ReportDate.Within(finding.StartDate, finding.EndDate) {
				continue
			}
			if detectors.Haversine(finding.Center, *c.Location) <= finding.RadiusKM {
				members = append(members, c)
			}
		}
		if len(members) == 0 {
			continue
		}

		caseIDs := make([]core.CaseID, len(members))
		for i, m := range members {
			caseIDs[i] = m.ID
		}
		// The label comes from the whole analyzed batch, not just the
		// circle's members.
		diseaseType := mostCommonDiseaseType(cases)

		s.clusterSeq++
		cluster := epi.NewCluster(
			fmt.Sprintf("Cluster %d - %s", s.clusterSeq, diseaseType),
			diseaseType, caseIDs, finding.StartDate)
		cluster.EndDate = &finding.EndDate
		center := finding.Center
		cluster.Location = &center
		cluster.RiskLevel = riskFromRelativeRisk(finding.RelativeRisk)
		cluster.Notes = fmt.Sprintf(
			"Auto-created from spatial detection: relative risk %.2f, radius %.1f km, p=%.4f",
			finding.RelativeRisk, finding.RadiusKM, finding.PValue)

		if err := s.store.Create(ctx, cluster); err != nil {
			return nil, fmt.Errorf("failed to store cluster %s: %w", cluster.ID, err)
		}
		s.logger.Info("created cluster %s: %d cases, risk=%s", cluster.ID, len(caseIDs), cluster.RiskLevel)
		created = append(created, cluster)
	}

	return created, nil
}

// mostCommonDiseaseType picks the modal disease among members, breaking ties
// by first appearance so repeated runs name clusters identically.
func mostCommonDiseaseType(cases []epi.CaseRecord) epi.DiseaseType {
	counts := make(map[epi.DiseaseType]int)
	order := make([]epi.DiseaseType, 0)
	for _, c := range cases {
		if counts[c.DiseaseType] == 0 {
			order = append(order, c.DiseaseType)
		}
		counts[c.DiseaseType]++
	}

	best := epi.DiseaseUnknown
	bestCount := 0
	for _, dt := range order {
		if counts[dt] > bestCount {
			best = dt
			bestCount = counts[dt]
		}
	}
	return best
}

func riskFromRelativeRisk(rr float64) epi.RiskLevel {
	switch {
	case rr >= 3.0:
		return epi.RiskHigh
	case rr >= 2.0:
		return epi.RiskMedium
	}
	return epi.RiskLow
}

// DetectionStatus reports the live state of every configured detector, the
// merged level across them, and the active cluster load.
func (s *OutbreakService) DetectionStatus(ctx context.Context) (*EngineStatus, error) {
	status := &EngineStatus{
		OverallLevel: epi.LevelNormal,
		Detectors:    make(map[string]detectors.Status),
	}
	if s.cusum != nil {
		status.Detectors[s.cusum.Name()] = s.cusum.Status()
	}
	if s.sequential != nil {
		status.Detectors[s.sequential.Name()] = s.sequential.Status()
	}
	if s.spacetime != nil {
		status.Detectors[s.spacetime.Name()] = s.spacetime.Status()
	}
	for _, d := range status.Detectors {
		status.OverallLevel = epi.MaxLevel(status.OverallLevel, d.DetectionLevel)
	}

	active, err := s.store.FindActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count active clusters: %w", err)
	}
	status.ActiveClusters = len(active)

	return status, nil
}

// Summary aggregates stored clusters and the latest detection results over a
// trailing window of days.
func (s *OutbreakService) Summary(ctx context.Context, days int) (*OutbreakSummary, error) {
	if days < 1 {
		days = 30
	}

	all, err := s.store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clusters: %w", err)
	}
	results, err := s.store.GetAllDetectionResults(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection results: %w", err)
	}

	summary := &OutbreakSummary{
		WindowDays:    days,
		TotalClusters: len(all),
		ByDiseaseType: make(map[epi.DiseaseType]int),
		ByRiskLevel:   make(map[epi.RiskLevel]int),
		LatestResults: results,
		OverallLevel:  epi.LevelNormal,
		GeneratedAt:   time.Now(),
	}

	// Counts cover the window only; total and active gauge the whole store.
	cutoff := core.Today().AddDays(-days)
	for _, cluster := range all {
		if cluster.IsActive() {
			summary.ActiveClusters++
		}
		if cluster.StartDate.Before(cutoff) {
			continue
		}
		summary.RecentClusters = append(summary.RecentClusters, cluster)
		summary.TotalCases += cluster.CaseCount()
		summary.ByDiseaseType[cluster.DiseaseType]++
		summary.ByRiskLevel[cluster.RiskLevel]++
	}
	sort.Slice(summary.RecentClusters, func(i, j int) bool {
		return summary.RecentClusters[i].StartDate.Before(summary.RecentClusters[j].StartDate)
	})

	// Only results recorded inside the window count toward the level.
	windowStart := time.Now().AddDate(0, 0, -days)
	for _, result := range results {
		if result.Timestamp.Before(windowStart) {
			continue
		}
		summary.OverallLevel = epi.MaxLevel(summary.OverallLevel, result.DetectionLevel)
	}

	return summary, nil
}

// CreateCluster validates and stores a manually defined cluster.
func (s *OutbreakService) CreateCluster(ctx context.Context, name string, diseaseType epi.DiseaseType, cases []core.CaseID, startDate core.Date) (*epi.Cluster, error) {
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.InvalidInput("cluster name must not be empty")
	}
	if startDate.IsZero() {
		return nil, apperrors.InvalidInput("cluster start date must be set")
	}
	cluster := epi.NewCluster(name, diseaseType, cases, startDate)
	if err := s.store.Create(ctx, cluster); err != nil {
		return nil, fmt.Errorf("failed to create cluster: %w", err)
	}
	return cluster, nil
}

// GetCluster returns one cluster by id.
func (s *OutbreakService) GetCluster(ctx context.Context, id core.ClusterID) (*epi.Cluster, error) {
	return s.store.Get(ctx, id)
}

// AllClusters returns every stored cluster.
func (s *OutbreakService) AllClusters(ctx context.Context) ([]*epi.Cluster, error) {
	return s.store.GetAll(ctx)
}

// ActiveClusters returns the clusters that are not closed.
func (s *OutbreakService) ActiveClusters(ctx context.Context) ([]*epi.Cluster, error) {
	return s.store.FindActive(ctx)
}

// ClustersByDiseaseType returns the clusters tracking one disease.
func (s *OutbreakService) ClustersByDiseaseType(ctx context.Context, diseaseType epi.DiseaseType) ([]*epi.Cluster, error) {
	return s.store.FindByDiseaseType(ctx, diseaseType)
}

// ClustersInRange returns clusters whose start date falls within
// [start, end] inclusive.
func (s *OutbreakService) ClustersInRange(ctx context.Context, start, end core.Date) ([]*epi.Cluster, error) {
	return s.store.FindByDateRange(ctx, start, end)
}

// ClustersForCase returns every cluster containing the case.
func (s *OutbreakService) ClustersForCase(ctx context.Context, caseID core.CaseID) ([]*epi.Cluster, error) {
	return s.store.FindByCaseID(ctx, caseID)
}

// UpdateCluster persists changes to an existing cluster.
func (s *OutbreakService) UpdateCluster(ctx context.Context, cluster *epi.Cluster) error {
	return s.store.Update(ctx, cluster)
}

// CloseCluster closes a cluster, stamping its end date.
func (s *OutbreakService) CloseCluster(ctx context.Context, id core.ClusterID) (*epi.Cluster, error) {
	cluster, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cluster.Close()
	if err := s.store.Update(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}

// AddCaseToCluster adds a case to an existing cluster.
func (s *OutbreakService) AddCaseToCluster(ctx context.Context, id core.ClusterID, caseID core.CaseID) (*epi.Cluster, error) {
	cluster, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cluster.AddCase(caseID)
	if err := s.store.Update(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}

// RemoveCaseFromCluster removes a case from an existing cluster.
func (s *OutbreakService) RemoveCaseFromCluster(ctx context.Context, id core.ClusterID, caseID core.CaseID) (*epi.Cluster, error) {
	cluster, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cluster.RemoveCase(caseID)
	if err := s.store.Update(ctx, cluster); err != nil {
		return nil, err
	}
	return cluster, nil
}
