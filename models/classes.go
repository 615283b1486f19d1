package models

import "fmt"

// ClassSet ties a family to its full list of labels.
type ClassSet struct {
	// Family is the class set identifier.
	Family Family
	// Names holds the labels in model index order.
	Names []string
}

// Name returns the label for an index, falling back to "class_<idx>".
func (s *ClassSet) Name(idx int) string {
	if s == nil || idx < 0 || idx >= len(s.Names) {
		return fmt.Sprintf("class_%d", idx)
	}
	return s.Names[idx]
}

// Len returns the number of labels in the set.
func (s *ClassSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Names)
}

var cocoNames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = &ClassSet{Family: FamilyYOLO, Names: cocoNames}

// ClassSetFor returns the class set of a family, nil when the family is unknown.
func ClassSetFor(family Family) *ClassSet {
	switch family {
	case FamilyYOLO:
		return YOLOClasses
	default:
		return nil
	}
}
