// Package models - Supported detection models, their class sets and artifact loading.
package models

// Family identifies the label convention a model was trained with.
type Family string

// FamilyYOLO is the 80 COCO classes indexed from zero, no background class.
const FamilyYOLO Family = "yolo"

// ProgressFunc receives load progress as a fraction in [0, 1].
type ProgressFunc func(fraction float64)

// Spec describes a loadable model.
type Spec struct {
	// ID is the registry identifier of the model.
	ID ID `json:"id" yaml:"id"`
	// Family selects the class set used for labels.
	Family Family `json:"family" yaml:"family"`
	// Location is a file, a directory holding model.onnx, or an http(s) URL.
	Location string `json:"location" yaml:"location"`
	// NumClasses is the number of class score rows in the raw output.
	NumClasses int `json:"num_classes" yaml:"num_classes"`
	// InputSize is the square input side used when the model declares dynamic dimensions.
	InputSize int `json:"input_size" yaml:"input_size"`
}

// ClassName returns the human-readable label for a class index.
//
// Arguments:
//   - idx: The class index produced by the model.
//
// Returns:
//   - string: The label, or "class_<idx>" when the family has no name for the index.
func (s Spec) ClassName(idx int) string {
	return ClassSetFor(s.Family).Name(idx)
}
