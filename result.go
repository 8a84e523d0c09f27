package tinyimg

import "math"

// Result describes one completed compression run.
type Result struct {
	// SourcePath is the absolute path of the input file.
	SourcePath string
	// OutputPath is the absolute path the compressed file was written to.
	// Equal to SourcePath when overwrite is on.
	OutputPath string
	// InputSize and OutputSize are file sizes in bytes.
	InputSize  int64
	OutputSize int64
	// ReductionPercent is the size reduction rounded to one decimal place.
	ReductionPercent float64
	// CompressionCount is the account's month-to-date compression count as
	// reported by the service, zero when unavailable.
	CompressionCount int
	// RemoteURL is the service URL of the compressed result.
	RemoteURL string
	// Resized reports whether a remote resize was applied. The dimension
	// fields are only meaningful when it is true.
	Resized          bool
	InputDimensions  Dimensions
	OutputDimensions Dimensions
	// Paths carries the requested output path form(s); nil when the path
	// mode is PathNone.
	Paths *PathReport
}

// PathReport is the output path in the form(s) selected by PathMode. Only
// the fields for the requested mode are populated; PathAll fills them all.
type PathReport struct {
	Absolute string
	Relative string
	// Project is the path relative to the enclosing project root.
	// HasProject is false when no ancestor directory carries a project
	// marker, in which case Project is empty.
	Project    string
	HasProject bool
}

// reductionPercent returns the size reduction as a percentage rounded to
// one decimal place. Non-positive input sizes yield zero.
func reductionPercent(inputSize, outputSize int64) float64 {
	if inputSize <= 0 {
		return 0
	}
	frac := float64(inputSize-outputSize) / float64(inputSize)
	return math.Round(frac*1000) / 10
}
