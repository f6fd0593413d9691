package models

// DetectionResult.Box holds normalized [y1, x1, y2, x2] coordinates.
type DetectionResult struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	Box        []float32 `json:"box"`
}

type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Scale maps the normalized box onto a width x height picture.
func (r DetectionResult) Scale(width, height int) (Box, bool) {
	if len(r.Box) < 4 {
		return Box{}, false
	}

	w := float32(width)
	h := float32(height)

	return Box{
		Y1: int(r.Box[0] * h),
		X1: int(r.Box[1] * w),
		Y2: int(r.Box[2] * h),
		X2: int(r.Box[3] * w),
	}, true
}
