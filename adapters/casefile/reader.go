// Package casefile parses external case-record feeds into domain records.
// Enum strings are parsed totally at this boundary; raw strings never cross
// into the engine. A malformed record rejects only itself, never the batch.
package casefile

import (
	"encoding/json"
	"fmt"
	"os"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// RawCase mirrors the wire shape of the upstream case feed.
type RawCase struct {
	ID             string       `json:"id"`
	PatientID      string       `json:"patient_id"`
	DiseaseType    string       `json:"disease_type"`
	ReportDate     string       `json:"report_date"`
	OnsetDate      string       `json:"onset_date"`
	Classification string       `json:"classification"`
	Location       *RawLocation `json:"location"`
}

// RawLocation mirrors the wire shape of a case location.
type RawLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ParseCase converts one raw record into a domain CaseRecord. ReportDate is
// required; a missing or unknown disease type falls back to unknown, and an
// absent classification defaults to suspected as upstream feeds do.
func ParseCase(raw RawCase) (epi.CaseRecord, error) {
	if raw.ReportDate == "" {
		return epi.CaseRecord{}, core.ErrMissingDate
	}
	reportDate, err := core.ParseDate(raw.ReportDate)
	if err != nil {
		return epi.CaseRecord{}, core.NewRecordError("report_date", err.Error())
	}

	record := epi.CaseRecord{
		ID:          core.CaseID(raw.ID),
		PatientID:   core.PatientID(raw.PatientID),
		DiseaseType: epi.DiseaseUnknown,
		ReportDate:  reportDate,
	}
	if record.ID.IsEmpty() {
		record.ID = core.CaseID(core.NewID())
	}

	if raw.DiseaseType != "" {
		diseaseType, err := epi.ParseDiseaseType(raw.DiseaseType)
		if err != nil {
			return epi.CaseRecord{}, core.NewRecordError("disease_type", err.Error())
		}
		record.DiseaseType = diseaseType
	}

	record.Classification = epi.ClassificationSuspected
	if raw.Classification != "" {
		classification, err := epi.ParseCaseClassification(raw.Classification)
		if err != nil {
			return epi.CaseRecord{}, core.NewRecordError("classification", err.Error())
		}
		record.Classification = classification
	}

	if raw.OnsetDate != "" {
		onsetDate, err := core.ParseDate(raw.OnsetDate)
		if err != nil {
			return epi.CaseRecord{}, core.NewRecordError("onset_date", err.Error())
		}
		record.OnsetDate = onsetDate
	}

	if raw.Location != nil {
		record.Location = &epi.GeoPoint{
			Latitude:  raw.Location.Latitude,
			Longitude: raw.Location.Longitude,
		}
	}

	return record, nil
}

// ParseCases converts a batch, collecting per-record diagnostics for the
// rejected ones.
func ParseCases(raws []RawCase) ([]epi.CaseRecord, []error) {
	records := make([]epi.CaseRecord, 0, len(raws))
	var rejected []error

	for i, raw := range raws {
		record, err := ParseCase(raw)
		if err != nil {
			rejected = append(rejected, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		records = append(records, record)
	}

	return records, rejected
}

// ReadFile loads a JSON array of raw cases from disk and parses it.
func ReadFile(path string) ([]epi.CaseRecord, []error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read case file: %w", err)
	}

	var raws []RawCase
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("failed to parse case file: %w", err)
	}

	records, rejected := ParseCases(raws)
	return records, rejected, nil
}
