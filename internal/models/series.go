package models

// Series is one scan acquisition found on disk: a folder holding at
// least two slice files.
type Series struct {
	// Name is the display name, normally the folder name
	Name string `json:"name"`

	// Dir is the absolute path of the folder
	Dir string `json:"dir"`

	// Files lists the slice files found in Dir, sorted by name
	Files []string `json:"files,omitempty"`
}

// SeriesInfo is an open, ordered mapping of descriptive attributes
// (patient, study, acquisition) extracted once per volume.
type SeriesInfo struct {
	Keys   []string          `json:"keys"`
	Values map[string]string `json:"values"`
}

// NewSeriesInfo returns an empty SeriesInfo
func NewSeriesInfo() SeriesInfo {
	return SeriesInfo{Values: make(map[string]string)}
}

// Add appends a key/value pair, replacing the value if the key exists
func (s *SeriesInfo) Add(key, value string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	if _, ok := s.Values[key]; !ok {
		s.Keys = append(s.Keys, key)
	}
	s.Values[key] = value
}

// Get returns the value stored for key
func (s SeriesInfo) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Len returns the number of attributes
func (s SeriesInfo) Len() int {
	return len(s.Keys)
}
