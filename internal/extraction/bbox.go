package extraction

// duplicateIoU is the overlap above which two detections are the same face.
const duplicateIoU = 0.9

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// dedupeDetections merges detections whose boxes overlap above minIoU,
// keeping the one with the higher detection score. Order of first
// appearance is preserved.
func dedupeDetections(faces []FaceDetection, minIoU float64) []FaceDetection {
	kept := make([]FaceDetection, 0, len(faces))
outer:
	for _, f := range faces {
		for i := range kept {
			if ComputeIoU(kept[i].BBox, f.BBox) >= minIoU {
				if f.DetScore > kept[i].DetScore {
					kept[i] = f
				}
				continue outer
			}
		}
		kept = append(kept, f)
	}
	return kept
}
