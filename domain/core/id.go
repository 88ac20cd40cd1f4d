package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ClusterID ID
	CaseID    ID
	PatientID ID
)

func (id ClusterID) String() string { return ID(id).String() }
func (id CaseID) String() string    { return ID(id).String() }
func (id PatientID) String() string { return ID(id).String() }

func (id ClusterID) IsEmpty() bool { return id == "" }
func (id CaseID) IsEmpty() bool    { return id == "" }

// NewClusterID creates a fresh cluster identifier
func NewClusterID() ClusterID {
	return ClusterID(NewID())
}

// ParseClusterID parses a string into ClusterID
func ParseClusterID(s string) (ClusterID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("cluster ID cannot be empty")
	}
	return ClusterID(s), nil
}

// ParseCaseID parses a string into CaseID
func ParseCaseID(s string) (CaseID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("case ID cannot be empty")
	}
	return CaseID(s), nil
}
