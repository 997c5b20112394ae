package models

// DefaultAnomaly is the label given to a series before the user edits it
const DefaultAnomaly = "Bleeding"

// AnnotationRecord holds the labels a user attached to one series.
// Slices is free text such as "0-11; 57-59; 112;" and is never parsed.
type AnnotationRecord struct {
	Anomaly string `json:"Anomaly"`
	Slices  string `json:"Slices"`
}

// DefaultAnnotation returns the record a series starts with
func DefaultAnnotation() AnnotationRecord {
	return AnnotationRecord{Anomaly: DefaultAnomaly}
}
