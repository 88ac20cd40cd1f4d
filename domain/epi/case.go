package epi

import (
	"epiwatch/domain/core"
)

// GeoPoint is a latitude/longitude pair in decimal degrees. The struct is
// comparable so points can key maps when deduplicating candidate centers.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// CaseRecord is the input contract from case/contact data collaborators.
// ReportDate is required; Location is optional and only gates spatial
// detection.
type CaseRecord struct {
	ID             core.CaseID        `json:"id"`
	PatientID      core.PatientID     `json:"patient_id,omitempty"`
	DiseaseType    DiseaseType        `json:"disease_type"`
	ReportDate     core.Date          `json:"report_date"`
	OnsetDate      core.Date          `json:"onset_date,omitempty"`
	Classification CaseClassification `json:"classification"`
	Location       *GeoPoint          `json:"location,omitempty"`
}

// IsPositive reports whether the case counts toward detection
func (c CaseRecord) IsPositive() bool {
	return c.Classification.IsPositive()
}

// HasLocation reports whether the case can enter spatial detection
func (c CaseRecord) HasLocation() bool {
	return c.Location != nil
}
