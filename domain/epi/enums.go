package epi

import "fmt"

// DetectionLevel grades the severity of a detection signal. Levels form a
// total order: normal < alert < warning < outbreak.
type DetectionLevel string

const (
	LevelNormal   DetectionLevel = "normal"
	LevelAlert    DetectionLevel = "alert"
	LevelWarning  DetectionLevel = "warning"
	LevelOutbreak DetectionLevel = "outbreak"
)

// Severity returns the rank of the level within the total order
func (l DetectionLevel) Severity() int {
	switch l {
	case LevelNormal:
		return 0
	case LevelAlert:
		return 1
	case LevelWarning:
		return 2
	case LevelOutbreak:
		return 3
	}
	return 0
}

// String returns the wire representation
func (l DetectionLevel) String() string { return string(l) }

// MaxLevel merges two detection levels, keeping the more severe one
func MaxLevel(a, b DetectionLevel) DetectionLevel {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// ParseDetectionLevel parses an external string into a DetectionLevel
func ParseDetectionLevel(s string) (DetectionLevel, error) {
	switch DetectionLevel(s) {
	case LevelNormal, LevelAlert, LevelWarning, LevelOutbreak:
		return DetectionLevel(s), nil
	}
	return "", fmt.Errorf("unknown detection level %q", s)
}

// CaseClassification describes the epidemiological certainty of a case
type CaseClassification string

const (
	ClassificationConfirmed CaseClassification = "confirmed"
	ClassificationProbable  CaseClassification = "probable"
	ClassificationSuspected CaseClassification = "suspected"
	ClassificationDiscarded CaseClassification = "discarded"
	ClassificationUnknown   CaseClassification = "unknown"
)

// IsPositive reports whether the classification counts as a positive case
// for detection purposes (confirmed or probable).
func (c CaseClassification) IsPositive() bool {
	return c == ClassificationConfirmed || c == ClassificationProbable
}

// ParseCaseClassification parses an external string into a CaseClassification
func ParseCaseClassification(s string) (CaseClassification, error) {
	switch CaseClassification(s) {
	case ClassificationConfirmed, ClassificationProbable, ClassificationSuspected,
		ClassificationDiscarded, ClassificationUnknown:
		return CaseClassification(s), nil
	}
	return "", fmt.Errorf("unknown case classification %q", s)
}

// DiseaseType identifies the disease under surveillance
type DiseaseType string

const (
	DiseaseCovid19       DiseaseType = "covid19"
	DiseaseInfluenza     DiseaseType = "influenza"
	DiseaseMeasles       DiseaseType = "measles"
	DiseaseTuberculosis  DiseaseType = "tuberculosis"
	DiseaseSalmonellosis DiseaseType = "salmonellosis"
	DiseaseEColi         DiseaseType = "e_coli"
	DiseaseHepatitis     DiseaseType = "hepatitis"
	DiseaseLyme          DiseaseType = "lyme"
	DiseaseWestNile      DiseaseType = "west_nile"
	DiseaseDengue        DiseaseType = "dengue"
	DiseaseZika          DiseaseType = "zika"
	DiseaseOther         DiseaseType = "other"
	DiseaseUnknown       DiseaseType = "unknown"
)

// ParseDiseaseType parses an external string into a DiseaseType
func ParseDiseaseType(s string) (DiseaseType, error) {
	switch DiseaseType(s) {
	case DiseaseCovid19, DiseaseInfluenza, DiseaseMeasles, DiseaseTuberculosis,
		DiseaseSalmonellosis, DiseaseEColi, DiseaseHepatitis, DiseaseLyme,
		DiseaseWestNile, DiseaseDengue, DiseaseZika, DiseaseOther, DiseaseUnknown:
		return DiseaseType(s), nil
	}
	return "", fmt.Errorf("unknown disease type %q", s)
}

// RiskLevel grades a cluster. Set by the owning service, never derived on
// the entity itself.
type RiskLevel string

const (
	RiskHigh    RiskLevel = "high"
	RiskMedium  RiskLevel = "medium"
	RiskLow     RiskLevel = "low"
	RiskUnknown RiskLevel = "unknown"
)

// ParseRiskLevel parses an external string into a RiskLevel
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch RiskLevel(s) {
	case RiskHigh, RiskMedium, RiskLow, RiskUnknown:
		return RiskLevel(s), nil
	}
	return "", fmt.Errorf("unknown risk level %q", s)
}

// TransmissionMode describes how a disease spreads within a cluster
type TransmissionMode string

const (
	TransmissionPersonToPerson TransmissionMode = "person_to_person"
	TransmissionFoodborne      TransmissionMode = "foodborne"
	TransmissionWaterborne     TransmissionMode = "waterborne"
	TransmissionVectorborne    TransmissionMode = "vectorborne"
	TransmissionAirborne       TransmissionMode = "airborne"
	TransmissionContact        TransmissionMode = "contact"
	TransmissionNosocomial     TransmissionMode = "nosocomial"
	TransmissionUnknown        TransmissionMode = "unknown"
)

// ParseTransmissionMode parses an external string into a TransmissionMode
func ParseTransmissionMode(s string) (TransmissionMode, error) {
	switch TransmissionMode(s) {
	case TransmissionPersonToPerson, TransmissionFoodborne, TransmissionWaterborne,
		TransmissionVectorborne, TransmissionAirborne, TransmissionContact,
		TransmissionNosocomial, TransmissionUnknown:
		return TransmissionMode(s), nil
	}
	return "", fmt.Errorf("unknown transmission mode %q", s)
}

// ClusterStatus tracks the lifecycle of a cluster
type ClusterStatus string

const (
	StatusActive ClusterStatus = "active"
	StatusClosed ClusterStatus = "closed"
)

// ParseClusterStatus parses an external string into a ClusterStatus
func ParseClusterStatus(s string) (ClusterStatus, error) {
	switch ClusterStatus(s) {
	case StatusActive, StatusClosed:
		return ClusterStatus(s), nil
	}
	return "", fmt.Errorf("unknown cluster status %q", s)
}
