package app

import (
	"context"
	"testing"

	"epiwatch/adapters/jsonstore"
	"epiwatch/adapters/stats/detectors"
	"epiwatch/domain/core"
	"epiwatch/domain/epi"
	"epiwatch/internal"
	"epiwatch/internal/config"
	"epiwatch/internal/testkit"
)

func newService(t *testing.T, cfg config.DetectionConfig) (*OutbreakService, *jsonstore.Store) {
	t.Helper()
	store, err := jsonstore.New("")
	if err != nil {
		t.Fatalf("jsonstore.New: %v", err)
	}
	service, err := NewOutbreakService(store, cfg, internal.NewLogger(internal.LogLevelError))
	if err != nil {
		t.Fatalf("NewOutbreakService: %v", err)
	}
	return service, store
}

func TestNewOutbreakService_DefaultsWhenNothingEnabled(t *testing.T) {
	service, _ := newService(t, config.DetectionConfig{})

	status, err := service.DetectionStatus(context.Background())
	if err != nil {
		t.Fatalf("DetectionStatus: %v", err)
	}
	for _, algorithm := range []string{
		detectors.AlgorithmCUSUM,
		detectors.AlgorithmGroupSequential,
		detectors.AlgorithmSpaceTime,
	} {
		if _, ok := status.Detectors[algorithm]; !ok {
			t.Errorf("default suite missing %s", algorithm)
		}
	}
	if status.OverallLevel != epi.LevelNormal {
		t.Errorf("fresh suite level = %v, want normal", status.OverallLevel)
	}
	if status.ActiveClusters != 0 {
		t.Errorf("fresh suite active clusters = %d, want 0", status.ActiveClusters)
	}
}

func TestNewOutbreakService_RejectsBadDetectorConfig(t *testing.T) {
	store, err := jsonstore.New("")
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewOutbreakService(store, config.DetectionConfig{
		SpaceTime: &config.SpaceTimeSettings{BaselineRate: 2},
	}, internal.NewLogger(internal.LogLevelError))
	if err == nil {
		t.Fatal("invalid detector settings did not fail construction")
	}
}

func TestOutbreakService_EmptyInput(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())

	report, err := service.DetectOutbreaks(context.Background(), nil)
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}
	if report.DetectionLevel != epi.LevelNormal {
		t.Errorf("got level %v, want normal", report.DetectionLevel)
	}
	if len(report.Results) != 0 {
		t.Errorf("empty input produced %d result entries, want none", len(report.Results))
	}
	if len(report.Clusters) != 0 {
		t.Errorf("empty input produced %d clusters", len(report.Clusters))
	}
	if report.CasesAnalyzed != 0 || report.SkippedRecords != 0 {
		t.Errorf("counts = %d analyzed / %d skipped, want 0/0",
			report.CasesAnalyzed, report.SkippedRecords)
	}
}

func TestOutbreakService_EmptyBatchAfterSignalStaysNormal(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())
	ctx := context.Background()

	point := epi.GeoPoint{Latitude: 40.0, Longitude: -74.0}
	var cases []epi.CaseRecord
	for i := 0; i < 10; i++ {
		cases = append(cases, epi.CaseRecord{
			ID:             core.CaseID(core.NewID()),
			DiseaseType:    epi.DiseaseMeasles,
			ReportDate:     core.Today(),
			Classification: epi.ClassificationConfirmed,
			Location:       &point,
		})
	}
	report, err := service.DetectOutbreaks(ctx, cases)
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}
	if report.DetectionLevel != epi.LevelOutbreak {
		t.Fatalf("hotspot batch level = %v, want outbreak", report.DetectionLevel)
	}

	// Detectors keep state between batches; an empty follow-up batch must
	// not replay the previous signal.
	report, err = service.DetectOutbreaks(ctx, nil)
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}
	if report.DetectionLevel != epi.LevelNormal {
		t.Errorf("empty batch level = %v, want normal", report.DetectionLevel)
	}
	if len(report.Results) != 0 {
		t.Errorf("empty batch produced %d result entries, want none", len(report.Results))
	}
	if len(report.Clusters) != 0 {
		t.Errorf("empty batch created %d clusters", len(report.Clusters))
	}
}

func TestOutbreakService_UnlocatedBatchSkipsSpatialRun(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())

	cases := []epi.CaseRecord{
		{ID: "u1", ReportDate: core.Today(), Classification: epi.ClassificationConfirmed},
		{ID: "u2", ReportDate: core.Today(), Classification: epi.ClassificationSuspected},
	}
	report, err := service.DetectOutbreaks(context.Background(), cases)
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}

	if _, ok := report.Results[detectors.AlgorithmSpaceTime]; ok {
		t.Error("spatial result present for a batch with no located cases")
	}
	if _, ok := report.Results[detectors.AlgorithmCUSUM]; !ok {
		t.Error("temporal detectors skipped alongside the spatial one")
	}
}

func TestOutbreakService_SkipsUndatedRecords(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())

	cases := []epi.CaseRecord{
		{ID: "dated", ReportDate: core.Today(), Classification: epi.ClassificationConfirmed},
		{ID: "undated", Classification: epi.ClassificationConfirmed},
	}
	report, err := service.DetectOutbreaks(context.Background(), cases)
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}
	if report.SkippedRecords != 1 {
		t.Errorf("skipped = %d, want 1", report.SkippedRecords)
	}
	if report.CasesAnalyzed != 1 {
		t.Errorf("analyzed = %d, want 1", report.CasesAnalyzed)
	}
}

func TestOutbreakService_DetectsInjectedHotspot(t *testing.T) {
	service, store := newService(t, config.DefaultDetection())
	ctx := context.Background()

	stream := testkit.NewCaseStream(42, epi.DiseaseMeasles)
	base := epi.GeoPoint{Latitude: 40.0, Longitude: -74.0}
	hotspot := epi.GeoPoint{Latitude: 40.6, Longitude: -74.6}
	for i := 13; i >= 1; i-- {
		stream.AddBaselineDay(core.Today().AddDays(-i), 20, 2, base, 15)
	}
	stream.AddBaselineDay(core.Today(), 20, 2, base, 15)
	stream.AddHotspot(core.Today(), 15, hotspot)

	report, err := service.DetectOutbreaks(ctx, stream.Records())
	if err != nil {
		t.Fatalf("DetectOutbreaks: %v", err)
	}

	if report.DetectionLevel != epi.LevelOutbreak {
		t.Errorf("got level %v, want outbreak", report.DetectionLevel)
	}
	if len(report.Clusters) == 0 {
		t.Error("no clusters auto-created from a significant hotspot")
	}
	for _, cluster := range report.Clusters {
		if cluster.CaseCount() == 0 {
			t.Errorf("cluster %s created with no cases", cluster.ID)
		}
		if cluster.DiseaseType != epi.DiseaseMeasles {
			t.Errorf("cluster %s disease = %v, want measles", cluster.ID, cluster.DiseaseType)
		}
	}

	// One latest result per algorithm lands in the store.
	results, err := store.GetAllDetectionResults(ctx)
	if err != nil {
		t.Fatalf("GetAllDetectionResults: %v", err)
	}
	for _, algorithm := range []string{
		detectors.AlgorithmCUSUM,
		detectors.AlgorithmGroupSequential,
		detectors.AlgorithmSpaceTime,
	} {
		if _, ok := results[algorithm]; !ok {
			t.Errorf("no stored result for %s", algorithm)
		}
	}
}

func TestOutbreakService_RelativeRiskFloorIsInclusive(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())
	ctx := context.Background()

	point := epi.GeoPoint{Latitude: 40.0, Longitude: -74.0}
	cases := []epi.CaseRecord{{
		ID:             "c1",
		DiseaseType:    epi.DiseaseMeasles,
		ReportDate:     core.Today(),
		Classification: epi.ClassificationConfirmed,
		Location:       &point,
	}}
	finding := detectors.ClusterFinding{
		Center:    point,
		RadiusKM:  10,
		StartDate: core.Today(),
		EndDate:   core.Today(),
	}

	finding.RelativeRisk = 1.2
	created, err := service.createClustersFromFindings(ctx, []detectors.ClusterFinding{finding}, cases)
	if err != nil {
		t.Fatalf("createClustersFromFindings: %v", err)
	}
	if len(created) != 1 {
		t.Errorf("relative risk exactly at the floor created %d clusters, want 1", len(created))
	}

	finding.RelativeRisk = 1.19
	created, err = service.createClustersFromFindings(ctx, []detectors.ClusterFinding{finding}, cases)
	if err != nil {
		t.Fatalf("createClustersFromFindings: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("relative risk below the floor created %d clusters, want 0", len(created))
	}
}

func TestOutbreakService_FindingWithNoCasesIsDropped(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())

	finding := detectors.ClusterFinding{
		Center:       epi.GeoPoint{Latitude: 0, Longitude: 0},
		RadiusKM:     10,
		StartDate:    core.Today(),
		EndDate:      core.Today(),
		RelativeRisk: 5,
	}
	created, err := service.createClustersFromFindings(context.Background(),
		[]detectors.ClusterFinding{finding}, nil)
	if err != nil {
		t.Fatalf("createClustersFromFindings: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("empty finding created %d clusters", len(created))
	}
}

func TestOutbreakService_ClusterLabelUsesWholeBatch(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())
	ctx := context.Background()

	center := epi.GeoPoint{Latitude: 40.0, Longitude: -74.0}
	faraway := epi.GeoPoint{Latitude: 45.0, Longitude: -74.0}
	cases := []epi.CaseRecord{
		{ID: "m1", DiseaseType: epi.DiseaseMeasles, ReportDate: core.Today(),
			Classification: epi.ClassificationConfirmed, Location: &center},
		{ID: "f1", DiseaseType: epi.DiseaseInfluenza, ReportDate: core.Today(),
			Classification: epi.ClassificationConfirmed, Location: &faraway},
		{ID: "f2", DiseaseType: epi.DiseaseInfluenza, ReportDate: core.Today(),
			Classification: epi.ClassificationConfirmed, Location: &faraway},
	}
	finding := detectors.ClusterFinding{
		Center:       center,
		RadiusKM:     10,
		StartDate:    core.Today(),
		EndDate:      core.Today(),
		RelativeRisk: 5,
	}

	created, err := service.createClustersFromFindings(ctx, []detectors.ClusterFinding{finding}, cases)
	if err != nil {
		t.Fatalf("createClustersFromFindings: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d clusters, want 1", len(created))
	}
	if created[0].CaseCount() != 1 {
		t.Errorf("membership = %d cases, want only the in-circle case", created[0].CaseCount())
	}
	if created[0].DiseaseType != epi.DiseaseInfluenza {
		t.Errorf("disease = %v, want the batch majority influenza", created[0].DiseaseType)
	}
}

func TestMostCommonDiseaseType_FirstSeenBreaksTies(t *testing.T) {
	cases := []epi.CaseRecord{
		{DiseaseType: epi.DiseaseInfluenza},
		{DiseaseType: epi.DiseaseMeasles},
		{DiseaseType: epi.DiseaseMeasles},
		{DiseaseType: epi.DiseaseInfluenza},
	}
	if got := mostCommonDiseaseType(cases); got != epi.DiseaseInfluenza {
		t.Errorf("tie broken to %v, want the first-seen influenza", got)
	}

	cases = append(cases, epi.CaseRecord{DiseaseType: epi.DiseaseMeasles})
	if got := mostCommonDiseaseType(cases); got != epi.DiseaseMeasles {
		t.Errorf("got %v, want the majority measles", got)
	}
}

func TestRiskFromRelativeRisk(t *testing.T) {
	cases := []struct {
		rr   float64
		want epi.RiskLevel
	}{
		{3.5, epi.RiskHigh},
		{3.0, epi.RiskHigh},
		{2.5, epi.RiskMedium},
		{1.5, epi.RiskLow},
	}
	for _, tc := range cases {
		if got := riskFromRelativeRisk(tc.rr); got != tc.want {
			t.Errorf("riskFromRelativeRisk(%v) = %v, want %v", tc.rr, got, tc.want)
		}
	}
}

func TestOutbreakService_ClusterLifecycle(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())
	ctx := context.Background()

	if _, err := service.CreateCluster(ctx, "  ", epi.DiseaseTuberculosis, nil, core.Today()); err == nil {
		t.Error("blank cluster name accepted")
	}
	if _, err := service.CreateCluster(ctx, "Ward B", epi.DiseaseTuberculosis, nil, core.Date{}); err == nil {
		t.Error("zero start date accepted")
	}

	cluster, err := service.CreateCluster(ctx, "Ward B", epi.DiseaseTuberculosis,
		[]core.CaseID{"t1"}, core.Today().AddDays(-3))
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}

	if _, err := service.AddCaseToCluster(ctx, cluster.ID, "t2"); err != nil {
		t.Fatalf("AddCaseToCluster: %v", err)
	}
	got, err := service.GetCluster(ctx, cluster.ID)
	if err != nil {
		t.Fatalf("GetCluster: %v", err)
	}
	if got.CaseCount() != 2 {
		t.Errorf("case count = %d, want 2", got.CaseCount())
	}

	forCase, err := service.ClustersForCase(ctx, "t2")
	if err != nil {
		t.Fatalf("ClustersForCase: %v", err)
	}
	if len(forCase) != 1 {
		t.Errorf("clusters for case = %d, want 1", len(forCase))
	}

	if _, err := service.RemoveCaseFromCluster(ctx, cluster.ID, "t2"); err != nil {
		t.Fatalf("RemoveCaseFromCluster: %v", err)
	}

	closed, err := service.CloseCluster(ctx, cluster.ID)
	if err != nil {
		t.Fatalf("CloseCluster: %v", err)
	}
	if closed.IsActive() || closed.EndDate == nil {
		t.Error("closed cluster still active or missing end date")
	}

	active, err := service.ActiveClusters(ctx)
	if err != nil {
		t.Fatalf("ActiveClusters: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active clusters = %d, want 0", len(active))
	}
}

func TestOutbreakService_Summary(t *testing.T) {
	service, _ := newService(t, config.DefaultDetection())
	ctx := context.Background()

	recent, err := service.CreateCluster(ctx, "Recent", epi.DiseaseMeasles,
		[]core.CaseID{"m1", "m2"}, core.Today().AddDays(-2))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := service.CreateCluster(ctx, "Old", epi.DiseaseInfluenza, nil, core.Today().AddDays(-90)); err != nil {
		t.Fatal(err)
	}

	summary, err := service.Summary(ctx, 30)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalClusters != 2 || summary.ActiveClusters != 2 {
		t.Errorf("totals = %d/%d active, want 2/2", summary.TotalClusters, summary.ActiveClusters)
	}
	if len(summary.RecentClusters) != 1 || summary.RecentClusters[0].ID != recent.ID {
		t.Errorf("recent clusters = %+v, want just %s", summary.RecentClusters, recent.ID)
	}
	if summary.ByDiseaseType[epi.DiseaseMeasles] != 1 {
		t.Errorf("measles count = %d, want 1", summary.ByDiseaseType[epi.DiseaseMeasles])
	}
	// The 90-day-old influenza cluster is outside the 30-day window and
	// must not leak into the windowed counts.
	if got := summary.ByDiseaseType[epi.DiseaseInfluenza]; got != 0 {
		t.Errorf("out-of-window influenza count = %d, want 0", got)
	}
	if summary.ByRiskLevel[epi.RiskUnknown] != 1 {
		t.Errorf("unknown-risk count = %d, want 1", summary.ByRiskLevel[epi.RiskUnknown])
	}
	if summary.TotalCases != 2 {
		t.Errorf("total cases = %d, want 2", summary.TotalCases)
	}
	if summary.OverallLevel != epi.LevelNormal {
		t.Errorf("overall level = %v, want normal with no stored results", summary.OverallLevel)
	}

	inRange, err := service.ClustersInRange(ctx, core.Today().AddDays(-7), core.Today())
	if err != nil {
		t.Fatalf("ClustersInRange: %v", err)
	}
	if len(inRange) != 1 || inRange[0].ID != recent.ID {
		t.Errorf("clusters in range = %d, want just the recent one", len(inRange))
	}
}
