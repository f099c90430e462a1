package models

// DataPoint represents one item of a dataset being explored
type DataPoint struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Hue       any       `json:"hue_var"` // string, number or nil
	Embedding []float64 `json:"embedding"`
}

// RenderPoint represents a projected data point as consumed by a renderer
type RenderPoint struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Hue         any     `json:"hue_var"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Opacity     float64 `json:"opacity"`
	Highlighted bool    `json:"highlighted"`
}

// ProjectedPoint represents a bare projected coordinate for export
type ProjectedPoint struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}
