package tinyimg

import "fmt"

// PathMode selects which form(s) of the output path a Result reports.
type PathMode string

const (
	// PathNone omits the path report entirely.
	PathNone PathMode = "none"
	// PathAbsolute reports the absolute output path.
	PathAbsolute PathMode = "absolute"
	// PathRelative reports the output path relative to how the source
	// path was supplied.
	PathRelative PathMode = "relative"
	// PathProject reports the output path relative to the enclosing
	// project root (nearest ancestor with a project marker).
	PathProject PathMode = "project"
	// PathAll reports all three forms.
	PathAll PathMode = "all"
)

// Validate checks that the mode is one of the defined values.
func (m PathMode) Validate() error {
	switch m {
	case PathNone, PathAbsolute, PathRelative, PathProject, PathAll:
		return nil
	}
	return newError(KindValidation, fmt.Sprintf("invalid path mode %q (valid: none, absolute, relative, project, all)", string(m)))
}

// ResizeMethod is the resize strategy applied by the compression service.
type ResizeMethod string

const (
	// ResizeScale scales proportionally to one target dimension.
	ResizeScale ResizeMethod = "scale"
	// ResizeFit scales down to fit within width x height, preserving
	// aspect ratio.
	ResizeFit ResizeMethod = "fit"
	// ResizeCover scales and crops to fill width x height exactly.
	ResizeCover ResizeMethod = "cover"
	// ResizeThumb generates a thumbnail with smart cropping.
	ResizeThumb ResizeMethod = "thumb"
)

// Validate checks that the method is one of the defined values.
func (m ResizeMethod) Validate() error {
	switch m {
	case ResizeScale, ResizeFit, ResizeCover, ResizeThumb:
		return nil
	}
	return newError(KindValidation, fmt.Sprintf("invalid resize method %q (valid: scale, fit, cover, thumb)", string(m)))
}

// ResizeSpec describes a remote resize request. A zero Width or Height
// means the dimension is not specified.
type ResizeSpec struct {
	Method ResizeMethod
	Width  int
	Height int
}

// Validate enforces the dimension rules for the method: scale takes exactly
// one of width/height, every other method takes both, and at least one
// positive dimension is always required.
func (r ResizeSpec) Validate() error {
	if err := r.Method.Validate(); err != nil {
		return err
	}
	if r.Width < 0 || r.Height < 0 {
		return newError(KindValidation, fmt.Sprintf("resize dimensions must be positive (got width=%d height=%d)", r.Width, r.Height))
	}
	hasWidth := r.Width > 0
	hasHeight := r.Height > 0
	if !hasWidth && !hasHeight {
		return newError(KindValidation, "resize requires at least one of width or height")
	}
	if r.Method == ResizeScale {
		if hasWidth && hasHeight {
			return newError(KindValidation, "resize method scale takes exactly one of width or height")
		}
		return nil
	}
	if !hasWidth || !hasHeight {
		return newError(KindValidation, fmt.Sprintf("resize method %s requires both width and height", r.Method))
	}
	return nil
}

// Dimensions is a pixel width and height pair.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}
