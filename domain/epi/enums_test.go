package epi

import "testing"

func TestDetectionLevel_TotalOrder(t *testing.T) {
	ordered := []DetectionLevel{LevelNormal, LevelAlert, LevelWarning, LevelOutbreak}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Severity() <= ordered[i-1].Severity() {
			t.Errorf("%v not ranked above %v", ordered[i], ordered[i-1])
		}
	}
}

func TestMaxLevel_KeepsMoreSevere(t *testing.T) {
	levels := []DetectionLevel{LevelNormal, LevelAlert, LevelWarning, LevelOutbreak}
	for _, a := range levels {
		for _, b := range levels {
			got := MaxLevel(a, b)
			want := a
			if b.Severity() > a.Severity() {
				want = b
			}
			if got != want {
				t.Errorf("MaxLevel(%v, %v) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestCaseClassification_IsPositive(t *testing.T) {
	cases := map[CaseClassification]bool{
		ClassificationConfirmed: true,
		ClassificationProbable:  true,
		ClassificationSuspected: false,
		ClassificationDiscarded: false,
		ClassificationUnknown:   false,
	}
	for classification, want := range cases {
		if got := classification.IsPositive(); got != want {
			t.Errorf("%v.IsPositive() = %v, want %v", classification, got, want)
		}
	}
}

func TestParseFunctions_RejectUnknownValues(t *testing.T) {
	if _, err := ParseDetectionLevel("catastrophic"); err == nil {
		t.Error("ParseDetectionLevel accepted an unknown value")
	}
	if _, err := ParseCaseClassification("maybe"); err == nil {
		t.Error("ParseCaseClassification accepted an unknown value")
	}
	if _, err := ParseDiseaseType("dragon_pox"); err == nil {
		t.Error("ParseDiseaseType accepted an unknown value")
	}
	if _, err := ParseRiskLevel("extreme"); err == nil {
		t.Error("ParseRiskLevel accepted an unknown value")
	}
	if _, err := ParseTransmissionMode("telepathic"); err == nil {
		t.Error("ParseTransmissionMode accepted an unknown value")
	}
	if _, err := ParseClusterStatus("paused"); err == nil {
		t.Error("ParseClusterStatus accepted an unknown value")
	}
}

func TestParseFunctions_AcceptKnownValues(t *testing.T) {
	if got, err := ParseDetectionLevel("warning"); err != nil || got != LevelWarning {
		t.Errorf("ParseDetectionLevel(warning) = (%v, %v)", got, err)
	}
	if got, err := ParseDiseaseType("measles"); err != nil || got != DiseaseMeasles {
		t.Errorf("ParseDiseaseType(measles) = (%v, %v)", got, err)
	}
	if got, err := ParseClusterStatus("closed"); err != nil || got != StatusClosed {
		t.Errorf("ParseClusterStatus(closed) = (%v, %v)", got, err)
	}
}
