package reconstruction

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"dicomlabeler/internal/models"
)

// infoTags lists the descriptive attributes copied into SeriesInfo,
// in display order. Attributes missing from a file are skipped.
var infoTags = []struct {
	keyword string
	tag     tag.Tag
}{
	{"PatientName", tag.PatientName},
	{"PatientID", tag.PatientID},
	{"PatientBirthDate", tag.PatientBirthDate},
	{"PatientSex", tag.PatientSex},
	{"PatientAge", tag.PatientAge},
	{"InstitutionName", tag.InstitutionName},
	{"StudyInstanceUID", tag.StudyInstanceUID},
	{"StudyDate", tag.StudyDate},
	{"StudyDescription", tag.StudyDescription},
	{"SeriesInstanceUID", tag.SeriesInstanceUID},
	{"SeriesDescription", tag.SeriesDescription},
	{"Modality", tag.Modality},
	{"Manufacturer", tag.Manufacturer},
	{"BodyPartExamined", tag.BodyPartExamined},
	{"SliceThickness", tag.SliceThickness},
	{"PixelSpacing", tag.PixelSpacing},
}

var errNoPixelData = errors.New("no native pixel data")

// loadSlice parses one DICOM file into a Slice. Only the first frame of
// uncompressed pixel data is used.
func loadSlice(path string) (*models.Slice, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, &SliceError{Path: path, Err: err}
	}

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil || pixelElem.Value == nil || pixelElem.Value.ValueType() != dicom.PixelData {
		return nil, &SliceError{Path: path, Err: errNoPixelData}
	}

	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return nil, &SliceError{Path: path, Err: errNoPixelData}
	}

	fr := info.Frames[0]
	if fr.Encapsulated {
		return nil, &SliceError{Path: path, Err: fmt.Errorf("compressed pixel data is not supported")}
	}

	native := fr.NativeData
	rows, cols := native.Rows, native.Cols
	if rows <= 0 || cols <= 0 || len(native.Data) < rows*cols {
		return nil, &SliceError{
			Path: path,
			Err:  fmt.Errorf("pixel data holds %d samples, expected %dx%d", len(native.Data), rows, cols),
		}
	}

	bitsAllocated := 16
	if v, ok := firstFloat(&ds, tag.BitsAllocated); ok {
		bitsAllocated = int(v)
	}
	signed := false
	if v, ok := firstFloat(&ds, tag.PixelRepresentation); ok {
		signed = v == 1
	}

	// Modality LUT: stored value * slope + intercept
	slope, intercept := 1.0, 0.0
	if v, ok := firstFloat(&ds, tag.RescaleSlope); ok && v != 0 {
		slope = v
	}
	if v, ok := firstFloat(&ds, tag.RescaleIntercept); ok {
		intercept = v
	}

	pixels := make([]float64, rows*cols)
	for i := range pixels {
		sample := native.Data[i]
		if len(sample) == 0 {
			continue
		}
		v := sample[0]
		if signed {
			v = signExtend(v, bitsAllocated)
		}
		pixels[i] = float64(v)*slope + intercept
	}

	slice := &models.Slice{
		Path:       path,
		Rows:       rows,
		Cols:       cols,
		Pixels:     pixels,
		Attributes: make(map[string]string),
	}

	// Ordering key preference: instance number, slice location, patient z
	if v, ok := firstFloat(&ds, tag.InstanceNumber); ok {
		slice.Order, slice.HasOrder = v, true
	} else if v, ok := firstFloat(&ds, tag.SliceLocation); ok {
		slice.Order, slice.HasOrder = v, true
	} else if pos := stringValues(&ds, tag.ImagePositionPatient); len(pos) == 3 {
		if z, err := strconv.ParseFloat(strings.TrimSpace(pos[2]), 64); err == nil {
			slice.Order, slice.HasOrder = z, true
		}
	}

	for _, it := range infoTags {
		values := stringValues(&ds, it.tag)
		if len(values) == 0 {
			continue
		}
		joined := strings.TrimSpace(strings.Join(values, "\\"))
		if joined != "" {
			slice.Attributes[it.keyword] = joined
		}
	}

	return slice, nil
}

// signExtend reinterprets an unsigned stored value as two's complement
func signExtend(v, bits int) int {
	switch bits {
	case 8:
		if v > math.MaxInt8 {
			return v - 1<<8
		}
	case 16:
		if v > math.MaxInt16 {
			return v - 1<<16
		}
	}
	return v
}

// stringValues returns the values of an element rendered as strings
func stringValues(ds *dicom.Dataset, t tag.Tag) []string {
	elem, err := ds.FindElementByTag(t)
	if err != nil || elem.Value == nil {
		return nil
	}

	switch v := elem.Value.GetValue().(type) {
	case []string:
		return v
	case []int:
		out := make([]string, len(v))
		for i, n := range v {
			out[i] = strconv.Itoa(n)
		}
		return out
	case []float64:
		out := make([]string, len(v))
		for i, f := range v {
			out[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return out
	}
	return nil
}

// firstFloat parses the first value of an element as a number
func firstFloat(ds *dicom.Dataset, t tag.Tag) (float64, bool) {
	values := stringValues(ds, t)
	if len(values) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(values[0]), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
