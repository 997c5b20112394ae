// Package annotation holds the per-series labels a user enters and
// exports them as JSON.
package annotation

import (
	"errors"
	"fmt"
	"sync"

	"dicomlabeler/internal/models"
)

// Field names accepted by Store.Set. They match the exported JSON keys.
const (
	FieldAnomaly = "Anomaly"
	FieldSlices  = "Slices"
)

var (
	// ErrUnknownField is returned by Set for a field other than Anomaly or Slices
	ErrUnknownField = errors.New("unknown annotation field")

	// ErrUnknownSeries is returned by Export for a name the store has never seen
	ErrUnknownSeries = errors.New("unknown series")
)

// Store maps series names to annotation records. Records are created with
// default values on first access. Safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	records map[string]*models.AnnotationRecord
	names   []string
}

// NewStore returns an empty store
func NewStore() *Store {
	return &Store{records: make(map[string]*models.AnnotationRecord)}
}

// record returns the record for name, creating it if needed. Callers hold mu.
func (s *Store) record(name string) *models.AnnotationRecord {
	rec, ok := s.records[name]
	if !ok {
		def := models.DefaultAnnotation()
		rec = &def
		s.records[name] = rec
		s.names = append(s.names, name)
	}
	return rec
}

// Get returns a copy of the record for name
func (s *Store) Get(name string) models.AnnotationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.record(name)
}

// Seed creates default records for names that have none yet
func (s *Store) Seed(names []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		s.record(name)
	}
}

// Set updates one field of the record for name
func (s *Store) Set(name, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch field {
	case FieldAnomaly:
		s.record(name).Anomaly = value
	case FieldSlices:
		s.record(name).Slices = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Put replaces the record for name
func (s *Store) Put(name string, rec models.AnnotationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.record(name) = rec
}

// Has reports whether a record exists for name
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[name]
	return ok
}

// Names returns the series names in the order they were first seen
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Reset drops every record
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.AnnotationRecord)
	s.names = nil
}

// Export copies the current records of names into a Document
func (s *Store) Export(names []string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := make(Document, len(names))
	for _, name := range names {
		rec, ok := s.records[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSeries, name)
		}
		doc[name] = *rec
	}
	return doc, nil
}
