// Package testkit generates deterministic case-record streams for tests.
package testkit

import (
	"fmt"
	"math/rand"

	"epiwatch/domain/core"
	"epiwatch/domain/epi"
)

// CaseStream builds a reproducible stream of case records day by day.
// Baseline days mix positives in at a fixed rate; a hotspot injects a burst
// of positive cases around one location.
type CaseStream struct {
	rng     *rand.Rand
	disease epi.DiseaseType
	next    int
	records []epi.CaseRecord
}

// NewCaseStream creates a stream seeded for reproducibility.
func NewCaseStream(seed int64, disease epi.DiseaseType) *CaseStream {
	return &CaseStream{
		rng:     rand.New(rand.NewSource(seed)),
		disease: disease,
	}
}

// Records returns everything generated so far.
func (s *CaseStream) Records() []epi.CaseRecord {
	return s.records
}

// AddBaselineDay appends total cases on one date, of which positives are
// confirmed, scattered around the given point within roughly jitterKM.
func (s *CaseStream) AddBaselineDay(date core.Date, total, positives int, near epi.GeoPoint, jitterKM float64) {
	for i := 0; i < total; i++ {
		classification := epi.ClassificationSuspected
		if i < positives {
			classification = epi.ClassificationConfirmed
		}
		location := s.jitter(near, jitterKM)
		s.records = append(s.records, epi.CaseRecord{
			ID:             s.nextID(),
			PatientID:      core.PatientID(core.NewID()),
			DiseaseType:    s.disease,
			ReportDate:     date,
			Classification: classification,
			Location:       &location,
		})
	}
}

// AddHotspot injects count confirmed cases at exactly one location on one
// date, simulating a point-source outbreak.
func (s *CaseStream) AddHotspot(date core.Date, count int, at epi.GeoPoint) {
	for i := 0; i < count; i++ {
		location := at
		s.records = append(s.records, epi.CaseRecord{
			ID:             s.nextID(),
			PatientID:      core.PatientID(core.NewID()),
			DiseaseType:    s.disease,
			ReportDate:     date,
			Classification: epi.ClassificationConfirmed,
			Location:       &location,
		})
	}
}

func (s *CaseStream) nextID() core.CaseID {
	s.next++
	return core.CaseID(fmt.Sprintf("case-%04d", s.next))
}

// jitter offsets a point by up to roughly km kilometers in each axis. One
// degree of latitude is about 111 km; longitude is close enough at the
// mid latitudes tests use.
func (s *CaseStream) jitter(p epi.GeoPoint, km float64) epi.GeoPoint {
	if km <= 0 {
		return p
	}
	deg := km / 111.0
	return epi.GeoPoint{
		Latitude:  p.Latitude + (s.rng.Float64()*2-1)*deg,
		Longitude: p.Longitude + (s.rng.Float64()*2-1)*deg,
	}
}
