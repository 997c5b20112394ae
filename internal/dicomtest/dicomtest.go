// Package dicomtest builds small DICOM series and zip archives for tests.
//
// Files are written as explicit VR little endian Part 10 files with a
// single uncompressed 16-bit frame, which is all the reconstruction code
// needs to exercise.
package dicomtest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zip"
)

const (
	ctImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	uidRoot                = "1.2.826.0.1.3680043.9.7433"
)

// Slice describes one generated slice file
type Slice struct {
	Rows int
	Cols int

	// InstanceNumber is written when non-zero
	InstanceNumber int

	// SliceLocation is written when HasLocation is set
	SliceLocation float64
	HasLocation   bool

	// RescaleSlope and RescaleIntercept are written when the slope is non-zero
	RescaleSlope     float64
	RescaleIntercept float64

	PatientName       string
	PatientID         string
	Modality          string
	SeriesDescription string
	StudyDate         string

	// Pixel returns the stored value at (row, col)
	Pixel func(row, col int) int16
}

type element struct {
	group uint16
	elem  uint16
	vr    string
	value []byte
}

func str(group, elem uint16, vr, s string) element {
	return element{group, elem, vr, []byte(s)}
}

func us(group, elem uint16, v uint16) element {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return element{group, elem, "US", b}
}

func formatDS(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Encode returns the bytes of a DICOM file for s
func Encode(s Slice) []byte {
	instanceUID := fmt.Sprintf("%s.%d.%d", uidRoot, s.InstanceNumber, s.Rows*s.Cols)

	meta := []element{
		{0x0002, 0x0001, "OB", []byte{0x00, 0x01}},
		str(0x0002, 0x0002, "UI", ctImageStorage),
		str(0x0002, 0x0003, "UI", instanceUID),
		str(0x0002, 0x0010, "UI", explicitVRLittleEndian),
	}

	modality := s.Modality
	if modality == "" {
		modality = "CT"
	}

	ds := []element{
		str(0x0008, 0x0016, "UI", ctImageStorage),
		str(0x0008, 0x0018, "UI", instanceUID),
		str(0x0008, 0x0060, "CS", modality),
		us(0x0028, 0x0002, 1),
		str(0x0028, 0x0004, "CS", "MONOCHROME2"),
		str(0x0028, 0x0008, "IS", "1"),
		us(0x0028, 0x0010, uint16(s.Rows)),
		us(0x0028, 0x0011, uint16(s.Cols)),
		us(0x0028, 0x0100, 16),
		us(0x0028, 0x0101, 16),
		us(0x0028, 0x0102, 15),
		us(0x0028, 0x0103, 1),
	}
	if s.StudyDate != "" {
		ds = append(ds, str(0x0008, 0x0020, "DA", s.StudyDate))
	}
	if s.SeriesDescription != "" {
		ds = append(ds, str(0x0008, 0x103E, "LO", s.SeriesDescription))
	}
	if s.PatientName != "" {
		ds = append(ds, str(0x0010, 0x0010, "PN", s.PatientName))
	}
	if s.PatientID != "" {
		ds = append(ds, str(0x0010, 0x0020, "LO", s.PatientID))
	}
	if s.InstanceNumber != 0 {
		ds = append(ds, str(0x0020, 0x0013, "IS", strconv.Itoa(s.InstanceNumber)))
	}
	if s.HasLocation {
		ds = append(ds, str(0x0020, 0x1041, "DS", formatDS(s.SliceLocation)))
	}
	if s.RescaleSlope != 0 {
		ds = append(ds,
			str(0x0028, 0x1052, "DS", formatDS(s.RescaleIntercept)),
			str(0x0028, 0x1053, "DS", formatDS(s.RescaleSlope)),
		)
	}

	pixels := make([]byte, 2*s.Rows*s.Cols)
	for r := 0; r < s.Rows; r++ {
		for c := 0; c < s.Cols; c++ {
			var v int16
			if s.Pixel != nil {
				v = s.Pixel(r, c)
			}
			binary.LittleEndian.PutUint16(pixels[2*(r*s.Cols+c):], uint16(v))
		}
	}
	ds = append(ds, element{0x7FE0, 0x0010, "OW", pixels})

	sort.Slice(ds, func(i, j int) bool {
		if ds[i].group != ds[j].group {
			return ds[i].group < ds[j].group
		}
		return ds[i].elem < ds[j].elem
	})

	var metaBuf bytes.Buffer
	for _, e := range meta {
		writeElement(&metaBuf, e)
	}

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")

	groupLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLen, uint32(metaBuf.Len()))
	writeElement(&out, element{0x0002, 0x0000, "UL", groupLen})
	out.Write(metaBuf.Bytes())

	for _, e := range ds {
		writeElement(&out, e)
	}
	return out.Bytes()
}

func writeElement(buf *bytes.Buffer, e element) {
	value := e.value
	if len(value)%2 != 0 {
		pad := byte(' ')
		if e.vr == "UI" || e.vr == "OB" || e.vr == "OW" {
			pad = 0x00
		}
		value = append(append([]byte{}, value...), pad)
	}

	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:], e.group)
	binary.LittleEndian.PutUint16(hdr[2:], e.elem)
	buf.Write(hdr[:])
	buf.WriteString(e.vr)

	switch e.vr {
	case "OB", "OW", "OF", "SQ", "UT", "UN":
		var l [6]byte
		binary.LittleEndian.PutUint32(l[2:], uint32(len(value)))
		buf.Write(l[:])
	default:
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(value)))
		buf.Write(l[:])
	}
	buf.Write(value)
}

// WriteSlice writes the slice to path, creating parent directories
func WriteSlice(path string, s Slice) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, Encode(s), 0644)
}

// WriteSeries writes n slices of rows x cols into dir. Instance numbers run
// from 1 to n while file names are written in reverse so that ordering by
// name and ordering by position disagree. pixel receives the zero-based
// instance position.
func WriteSeries(dir string, n, rows, cols int, pixel func(slice, row, col int) int16) ([]string, error) {
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		slice := i
		s := Slice{
			Rows:           rows,
			Cols:           cols,
			InstanceNumber: i + 1,
			PatientName:    "Doe^Jane",
			PatientID:      "P-001",
			StudyDate:      "20200101",
			Pixel: func(r, c int) int16 {
				if pixel == nil {
					return 0
				}
				return pixel(slice, r, c)
			},
		}
		path := filepath.Join(dir, fmt.Sprintf("IM%04d.dcm", n-i))
		if err := WriteSlice(path, s); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Archive returns a zip archive holding the given name -> content entries
func Archive(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ArchiveDir zips every regular file below root, using slash separated
// paths relative to root
func ArchiveDir(root string) ([]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return Archive(files)
}
