package postprocess

import (
	"sort"

	"github.com/chewxy/math32"
	"github.com/nvr-ai/live-detect/images"
)

// ApplyNMS filters overlapping detections using greedy Non-Maximum Suppression.
//
// Candidates scoring below ScoreThreshold are dropped first. The rest are visited in descending
// score order, ties keeping their input order, and a candidate is kept unless its IoU with an
// already kept box is at least IoUThreshold. With ClassAware set only boxes of the same class
// suppress each other. Selection stops after MaxOutputSize detections.
//
// Arguments:
//   - candidates: The unsorted candidates. The slice is not modified.
//   - cfg: The thresholds.
//
// Returns:
//   - []Detection: The kept detections in selection order, never nil.
func ApplyNMS(candidates []Detection, cfg Config) []Detection {
	if cfg.MaxOutputSize <= 0 || len(candidates) == 0 {
		return []Detection{}
	}

	order := make([]int, 0, len(candidates))
	for i, c := range candidates {
		if math32.IsNaN(c.Score) || c.Score < cfg.ScoreThreshold {
			continue
		}
		order = append(order, i)
	}
	sort.SliceStable(order, func(a, b int) bool {
		return candidates[order[a]].Score > candidates[order[b]].Score
	})

	kept := make([]Detection, 0, min(len(order), cfg.MaxOutputSize))
	for _, i := range order {
		if len(kept) >= cfg.MaxOutputSize {
			break
		}
		c := candidates[i]
		if suppressed(c, kept, cfg) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func suppressed(c Detection, kept []Detection, cfg Config) bool {
	for _, k := range kept {
		if cfg.ClassAware && k.Class != c.Class {
			continue
		}
		if images.IoU(k.Box, c.Box) >= cfg.IoUThreshold {
			return true
		}
	}
	return false
}
