package models

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ID is the unique identifier of a supported model.
type ID string

const (
	// YOLO11n is the nano YOLO11 detector.
	YOLO11n ID = "yolo11n"
	// YOLO11s is the small YOLO11 detector.
	YOLO11s ID = "yolo11s"
	// YOLO11m is the medium YOLO11 detector.
	YOLO11m ID = "yolo11m"
	// YOLOv8n is the nano YOLOv8 detector.
	YOLOv8n ID = "yolov8n"
)

// DefaultID is the model selected when nothing else is configured.
const DefaultID = YOLO11n

// DefaultDir is the directory model artifacts are looked up in.
const DefaultDir = "models"

// ErrUnknownModel is returned for identifiers that are not in the registry.
var ErrUnknownModel = errors.New("unknown model")

var registry = map[ID]Spec{
	YOLO11n: {ID: YOLO11n, Family: FamilyYOLO, NumClasses: 80, InputSize: 640},
	YOLO11s: {ID: YOLO11s, Family: FamilyYOLO, NumClasses: 80, InputSize: 640},
	YOLO11m: {ID: YOLO11m, Family: FamilyYOLO, NumClasses: 80, InputSize: 640},
	YOLOv8n: {ID: YOLOv8n, Family: FamilyYOLO, NumClasses: 80, InputSize: 640},
}

// Lookup returns the registered spec for a model id.
//
// The returned spec points at DefaultDir/<id>, which Fetch resolves to either a directory holding
// model.onnx or a <id>.onnx file.
//
// Arguments:
//   - id: The model identifier.
//
// Returns:
//   - Spec: The model spec.
//   - error: ErrUnknownModel if the id is not registered.
func Lookup(id ID) (Spec, error) {
	spec, ok := registry[id]
	if !ok {
		return Spec{}, errors.Wrapf(ErrUnknownModel, "%q", id)
	}
	spec.Location = filepath.Join(DefaultDir, string(id))
	return spec, nil
}

// ParseID validates a user supplied identifier.
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[id]; !ok {
		return "", errors.Wrapf(ErrUnknownModel, "%q (supported: %s)", s, strings.Join(idStrings(), ", "))
	}
	return id, nil
}

// IDs returns every registered identifier in lexical order.
func IDs() []ID {
	ids := make([]ID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func idStrings() []string {
	ids := IDs()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
