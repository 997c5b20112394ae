package annotation

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dicomlabeler/internal/models"
)

// ExportFileName is the name given to exported documents
const ExportFileName = "Annotation.json"

// Document is the exported form of a store:
//
//	{"series": {"Anomaly": "Bleeding", "Slices": "0-11; 57-59;"}}
type Document map[string]models.AnnotationRecord

// WriteDocument writes doc as indented JSON
func WriteDocument(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode annotations: %w", err)
	}
	return nil
}

// ReadDocument parses a document written by WriteDocument. Records with
// fields other than Anomaly and Slices are rejected.
func ReadDocument(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode annotations: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// SaveDocument writes doc to path
func SaveDocument(path string, doc Document) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create annotation file: %w", err)
	}

	if err := WriteDocument(file, doc); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadDocument reads a document from path
func LoadDocument(path string) (Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open annotation file: %w", err)
	}
	defer file.Close()

	return ReadDocument(file)
}
