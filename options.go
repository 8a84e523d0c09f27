package tinyimg

// Built-in option defaults, the lowest layer of resolution.
const (
	// DefaultSuffix is appended to the file stem when overwrite is off.
	DefaultSuffix = "_tiny"
)

// Option configures a single Shrink call, or a session's defaults when
// passed to SetDefaults. Per-call options win over session defaults, which
// win over the built-ins.
type Option func(*settings)

// settings is one layer of option values. A nil field is unset at that
// layer and defers to the layer below.
type settings struct {
	overwrite *bool
	suffix    *string
	quiet     *bool
	pathMode  *PathMode
	resize    *ResizeSpec
	apiKey    *string
}

// WithOverwrite replaces the source file in place instead of writing a
// suffixed copy.
func WithOverwrite(overwrite bool) Option {
	return func(s *settings) { s.overwrite = &overwrite }
}

// WithSuffix sets the stem suffix for the output file name.
func WithSuffix(suffix string) Option {
	return func(s *settings) { s.suffix = &suffix }
}

// WithQuiet suppresses the per-file compression report.
func WithQuiet(quiet bool) Option {
	return func(s *settings) { s.quiet = &quiet }
}

// WithPathMode selects which output path form(s) the Result reports.
func WithPathMode(mode PathMode) Option {
	return func(s *settings) { s.pathMode = &mode }
}

// WithResize requests a remote resize of the compressed result.
func WithResize(spec ResizeSpec) Option {
	return func(s *settings) { s.resize = &spec }
}

// WithAPIKey sets the TinyPNG API key for the call (or, via SetDefaults,
// the session).
func WithAPIKey(key string) Option {
	return func(s *settings) { s.apiKey = &key }
}

// Field names a defaults-store entry for ClearDefaults. Values match the
// tinify.yml keys.
type Field string

const (
	FieldOverwrite  Field = "overwrite"
	FieldSuffix     Field = "suffix"
	FieldQuiet      Field = "quiet"
	FieldReturnPath Field = "return_path"
	FieldResize     Field = "resize"
	FieldAPIKey     Field = "api_key"
)

// apply collects options into a settings layer.
func apply(opts []Option) *settings {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// validateSettings checks each value set in a single layer. Layer
// validation is independent of the merged result so that SetDefaults can
// fail fast before committing anything.
func validateSettings(s *settings) error {
	if s.suffix != nil && *s.suffix == "" {
		return newError(KindValidation, "suffix must be a non-empty string")
	}
	if s.pathMode != nil {
		if err := s.pathMode.Validate(); err != nil {
			return err
		}
	}
	if s.resize != nil {
		if err := s.resize.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// mergeInto overlays src's set fields onto dst.
func mergeInto(dst, src *settings) {
	if src.overwrite != nil {
		dst.overwrite = src.overwrite
	}
	if src.suffix != nil {
		dst.suffix = src.suffix
	}
	if src.quiet != nil {
		dst.quiet = src.quiet
	}
	if src.pathMode != nil {
		dst.pathMode = src.pathMode
	}
	if src.resize != nil {
		dst.resize = src.resize
	}
	if src.apiKey != nil {
		dst.apiKey = src.apiKey
	}
}

// mergeUnset overlays src's set fields onto dst only where dst is unset.
// Used when folding a config file under existing session defaults.
func mergeUnset(dst, src *settings) {
	if dst.overwrite == nil {
		dst.overwrite = src.overwrite
	}
	if dst.suffix == nil {
		dst.suffix = src.suffix
	}
	if dst.quiet == nil {
		dst.quiet = src.quiet
	}
	if dst.pathMode == nil {
		dst.pathMode = src.pathMode
	}
	if dst.resize == nil {
		dst.resize = src.resize
	}
	if dst.apiKey == nil {
		dst.apiKey = src.apiKey
	}
}

// effective is the fully resolved option set for one compression run.
type effective struct {
	overwrite bool
	suffix    string
	quiet     bool
	pathMode  PathMode
	resize    *ResizeSpec
	apiKey    string

	// suffixIgnored is set when overwrite is on and a non-default suffix
	// was supplied anyway; the caller logs the warning.
	suffixIgnored bool
}

// resolve merges call options over session defaults over built-ins and
// validates the combined result. It is a pure function of its inputs.
func resolve(call, defaults *settings) (*effective, error) {
	if err := validateSettings(call); err != nil {
		return nil, err
	}

	merged := &settings{}
	mergeInto(merged, defaults)
	mergeInto(merged, call)

	eff := &effective{
		overwrite: false,
		suffix:    DefaultSuffix,
		quiet:     false,
		pathMode:  PathNone,
	}
	if merged.overwrite != nil {
		eff.overwrite = *merged.overwrite
	}
	if merged.suffix != nil {
		eff.suffix = *merged.suffix
	}
	if merged.quiet != nil {
		eff.quiet = *merged.quiet
	}
	if merged.pathMode != nil {
		eff.pathMode = *merged.pathMode
	}
	if merged.resize != nil {
		spec := *merged.resize
		eff.resize = &spec
	}
	if merged.apiKey != nil {
		eff.apiKey = *merged.apiKey
	}

	if !eff.overwrite && eff.suffix == "" {
		return nil, newError(KindValidation, "suffix must be non-empty when overwrite is disabled")
	}
	if eff.overwrite && merged.suffix != nil && eff.suffix != DefaultSuffix {
		eff.suffixIgnored = true
	}
	if err := eff.pathMode.Validate(); err != nil {
		return nil, err
	}
	if eff.resize != nil {
		if err := eff.resize.Validate(); err != nil {
			return nil, err
		}
	}

	return eff, nil
}
