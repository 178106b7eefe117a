// Package markers records which provisioning steps have completed.
//
// A marker is written once, when a step's resource was created or found to
// exist, and removed only by teardown or an explicit reset. Markers carry the
// step's published outputs so a later run can rebuild its context without
// contacting the cloud provider.
package markers

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrNotFound is returned by Get when no well-formed marker exists.
var ErrNotFound = errors.New("marker not found")

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Marker is the completion record of one step.
type Marker struct {
	StepID      string            `yaml:"stepID"`
	Outcome     string            `yaml:"outcome"`
	RunID       string            `yaml:"runID,omitempty"`
	CompletedAt time.Time         `yaml:"completedAt"`
	Outputs     map[string]string `yaml:"outputs,omitempty"`
}

func (m Marker) wellFormed(id string) bool {
	return m.StepID == id && m.Outcome != "" && !m.CompletedAt.IsZero()
}

func (m Marker) clone() Marker {
	m.Outputs = maps.Clone(m.Outputs)
	return m
}

// Store persists markers keyed by step ID.
type Store interface {
	// Has reports whether a well-formed marker exists for id.
	Has(id string) (bool, error)
	// Get returns the marker for id or ErrNotFound.
	Get(id string) (Marker, error)
	// Put records m atomically. CompletedAt is set when zero.
	Put(m Marker) error
	// Clear removes the marker for id. Clearing an absent marker is a no-op.
	Clear(id string) error
	// List returns every well-formed marker sorted by step ID.
	List() ([]Marker, error)
}

// ValidateID checks that id can be used as a marker key.
func ValidateID(id string) error {
	if !validID.MatchString(id) {
		return fmt.Errorf("invalid step id %q: must match %s", id, validID.String())
	}
	return nil
}

// Reset clears every marker whose step ID matches the doublestar pattern and
// returns the cleared IDs.
func Reset(s Store, pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	all, err := s.List()
	if err != nil {
		return nil, fmt.Errorf("listing markers: %w", err)
	}

	var cleared []string
	for _, m := range all {
		ok, err := doublestar.Match(pattern, m.StepID)
		if err != nil {
			return cleared, fmt.Errorf("matching %q: %w", m.StepID, err)
		}
		if !ok {
			continue
		}
		if err := s.Clear(m.StepID); err != nil {
			return cleared, fmt.Errorf("clearing %q: %w", m.StepID, err)
		}
		cleared = append(cleared, m.StepID)
	}
	slices.Sort(cleared)
	return cleared, nil
}
