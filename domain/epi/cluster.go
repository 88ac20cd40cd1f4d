package epi

import (
	"time"

	"epiwatch/domain/core"
)

// Cluster is a group of epidemiologically related cases. Clusters are
// created by explicit calls or materialized by the detection service from a
// significant spatial signal; they are mutated through the methods below and
// never hard-deleted by the detection subsystem itself.
type Cluster struct {
	ID               core.ClusterID   `json:"id"`
	Name             string           `json:"name"`
	DiseaseType      DiseaseType      `json:"disease_type"`
	Cases            []core.CaseID    `json:"cases"`
	StartDate        core.Date        `json:"start_date"`
	EndDate          *core.Date       `json:"end_date,omitempty"`
	Location         *GeoPoint        `json:"location,omitempty"`
	Regions          []string         `json:"regions"`
	Status           ClusterStatus    `json:"status"`
	TransmissionMode TransmissionMode `json:"transmission_mode"`
	RiskLevel        RiskLevel        `json:"risk_level"`
	IndexCaseID      core.CaseID      `json:"index_case_id,omitempty"`
	CommonExposures  []string         `json:"common_exposures"`
	Interventions    []string         `json:"interventions"`
	Notes            string           `json:"notes,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// NewCluster creates an active cluster with a fresh ID and timestamps
func NewCluster(name string, diseaseType DiseaseType, cases []core.CaseID, startDate core.Date) *Cluster {
	now := time.Now()
	return &Cluster{
		ID:               core.NewClusterID(),
		Name:             name,
		DiseaseType:      diseaseType,
		Cases:            dedupeCaseIDs(cases),
		StartDate:        startDate,
		Regions:          []string{},
		Status:           StatusActive,
		TransmissionMode: TransmissionUnknown,
		RiskLevel:        RiskUnknown,
		CommonExposures:  []string{},
		Interventions:    []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func dedupeCaseIDs(ids []core.CaseID) []core.CaseID {
	seen := make(map[core.CaseID]bool, len(ids))
	out := make([]core.CaseID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// AddCase adds a case to the cluster. Adding an ID that is already a member
// is a no-op; either way UpdatedAt is bumped.
func (c *Cluster) AddCase(caseID core.CaseID) {
	if !c.ContainsCase(caseID) {
		c.Cases = append(c.Cases, caseID)
	}
	c.UpdatedAt = time.Now()
}

// RemoveCase removes a case from the cluster. Removing an absent ID is a
// no-op; either way UpdatedAt is bumped.
func (c *Cluster) RemoveCase(caseID core.CaseID) {
	for i, id := range c.Cases {
		if id == caseID {
			c.Cases = append(c.Cases[:i], c.Cases[i+1:]...)
			break
		}
	}
	c.UpdatedAt = time.Now()
}

// ContainsCase reports whether the case is a member
func (c *Cluster) ContainsCase(caseID core.CaseID) bool {
	for _, id := range c.Cases {
		if id == caseID {
			return true
		}
	}
	return false
}

// UpdateStatus sets the lifecycle status
func (c *Cluster) UpdateStatus(status ClusterStatus) {
	c.Status = status
	c.UpdatedAt = time.Now()
}

// Close forces the cluster closed. Invariant: a closed cluster always has an
// end date.
func (c *Cluster) Close() {
	c.Status = StatusClosed
	today := core.Today()
	c.EndDate = &today
	c.UpdatedAt = time.Now()
}

// CaseCount returns the number of member cases
func (c *Cluster) CaseCount() int {
	return len(c.Cases)
}

// DurationDays returns the cluster duration in whole days, using today as
// the end while the cluster is still open.
func (c *Cluster) DurationDays() int {
	end := core.Today()
	if c.EndDate != nil {
		end = *c.EndDate
	}
	return end.DaysSince(c.StartDate)
}

// IsActive reports whether the cluster is not closed
func (c *Cluster) IsActive() bool {
	return c.Status != StatusClosed
}
