package models

import "time"

// PageReport is the JSON document printed by the detect command.
type PageReport struct {
	// Source
	Input  string `json:"input"`  // Path of the analyzed image
	Width  int    `json:"width"`  // Working image width in pixels
	Height int    `json:"height"` // Working image height in pixels

	// Detection settings
	Engine    string `json:"engine"`    // "native" or "opencv"
	Bounds    string `json:"bounds"`    // "tight" or "dilated"
	Order     string `json:"order"`     // "detection" or "top-left"
	Threshold uint8  `json:"threshold"` // Otsu threshold picked for the page

	// Path of the diagnostic image, if written
	Overlay string `json:"overlay,omitempty"`

	Regions []RegionReport `json:"regions"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RegionReport is one detected region, in pixels and in page units.
type RegionReport struct {
	Index  int `json:"index"`
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`

	// Position on the output page (document units)
	PageX      float64 `json:"page_x"`
	PageY      float64 `json:"page_y"`
	PageWidth  float64 `json:"page_width"`
	PageHeight float64 `json:"page_height"`
}

// RunSummary describes one reconstructed page. It is printed by
// reconstruct --json and collected by batch.
type RunSummary struct {
	RunID    string        `json:"run_id"`
	Input    string        `json:"input"`
	Output   string        `json:"output"`
	Overlay  string        `json:"overlay,omitempty"`
	Regions  int           `json:"regions"`
	Failed   []int         `json:"failed,omitempty"` // Indices of regions whose text could not be recognized
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}
