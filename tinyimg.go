// Package tinyimg compresses PNG and JPEG files through the TinyPNG API
// (https://tinypng.com). A Session owns the configuration defaults and
// credentials; Shrink runs the compression pipeline for one file:
//
//  1. Validate the source file (existence, png/jpg/jpeg extension)
//  2. Resolve the API key (call option, then session default, then the
//     TINY_API environment variable)
//  3. Upload the raw bytes for compression
//  4. Resize the remote result, or download it byte-for-byte
//  5. Write the output atomically next to the source
//  6. Report the size reduction and the requested output path form(s)
//
// Options resolve per field: per-call options win over session defaults,
// which win over the built-ins (no overwrite, suffix "_tiny", not quiet, no
// path report, no resize). Session defaults can also be loaded from a
// tinify.yml file found in the project tree.
//
// A Session is safe for concurrent use. The library never retries and runs
// no internal concurrency; each call is a sequence of blocking HTTP round
// trips under the caller's context.
package tinyimg

import (
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/tinyimg/internal/config"
	"github.com/fpang/tinyimg/internal/tinypng"
)

// Session holds compression defaults and connection settings. The zero
// value is not usable; create one with NewSession.
type Session struct {
	mu       sync.RWMutex
	defaults settings

	httpClient *http.Client
	baseURL    string
	markers    []string
}

// SessionOption configures a Session at construction.
type SessionOption func(*Session)

// WithHTTPClient replaces the HTTP client used for API calls. The caller's
// client controls timeouts, proxies and TLS settings.
func WithHTTPClient(httpClient *http.Client) SessionOption {
	return func(s *Session) { s.httpClient = httpClient }
}

// WithBaseURL points the session at a different compression API endpoint.
func WithBaseURL(baseURL string) SessionOption {
	return func(s *Session) { s.baseURL = baseURL }
}

// WithProjectMarkers replaces the directory entries that identify a project
// root for PathProject reporting (default: .git, go.mod).
func WithProjectMarkers(markers ...string) SessionOption {
	return func(s *Session) {
		if len(markers) > 0 {
			s.markers = markers
		}
	}
}

// NewSession creates a Session with no defaults set.
func NewSession(opts ...SessionOption) *Session {
	s := &Session{
		markers: defaultProjectMarkers,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDefaults stores option defaults on the session. All supplied options
// are validated before any is committed; on error the defaults are
// unchanged.
func (s *Session) SetDefaults(opts ...Option) error {
	candidate := apply(opts)
	if err := validateSettings(candidate); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mergeInto(&s.defaults, candidate)
	return nil
}

// ClearDefaults unsets the named default fields, restoring the built-in
// behavior for each. With no arguments it clears every field.
func (s *Session) ClearDefaults(fields ...Field) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fields) == 0 {
		s.defaults = settings{}
		return
	}
	for _, f := range fields {
		switch f {
		case FieldOverwrite:
			s.defaults.overwrite = nil
		case FieldSuffix:
			s.defaults.suffix = nil
		case FieldQuiet:
			s.defaults.quiet = nil
		case FieldReturnPath:
			s.defaults.pathMode = nil
		case FieldResize:
			s.defaults.resize = nil
		case FieldAPIKey:
			s.defaults.apiKey = nil
		default:
			log.Warn().Str("field", string(f)).Msg("Unknown defaults field ignored")
		}
	}
}

// Reset restores the session to its pristine state: every default unset,
// including the API key.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = settings{}
}

// SetAPIKey stores the TinyPNG API key as a session default.
func (s *Session) SetAPIKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults.apiKey = &key
}

// Quiet reports the session's effective quiet default: the stored value when
// one is set (by SetDefaults or a loaded config file), otherwise the built-in
// false. Callers that render their own success output can gate it on this.
func (s *Session) Quiet() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.defaults.quiet != nil {
		return *s.defaults.quiet
	}
	return false
}

// snapshotDefaults copies the defaults under the read lock so a running
// pipeline sees one consistent layer.
func (s *Session) snapshotDefaults() settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// LoadConfigFile loads option defaults from the tinify.yml at path. File
// values fill only fields not already set on the session, so explicit
// SetDefaults calls keep precedence. Read, parse and value errors are
// returned.
func (s *Session) LoadConfigFile(path string) error {
	f, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	fromFile, err := settingsFromFile(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	mergeUnset(&s.defaults, fromFile)
	return nil
}

// LoadProjectConfig looks for a tinify.yml in the working directory or any
// ancestor and loads it best-effort: a missing, unreadable or invalid file
// is skipped with a debug log, never an error.
func (s *Session) LoadProjectConfig() {
	wd, err := os.Getwd()
	if err != nil {
		log.Debug().Err(err).Msg("Skipping project config: no working directory")
		return
	}
	path, ok := config.Discover(wd)
	if !ok {
		log.Debug().Str("startDir", wd).Msg("No project config found")
		return
	}
	if err := s.LoadConfigFile(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Skipping unusable project config")
		return
	}
	log.Debug().Str("path", path).Msg("Loaded project config")
}

// settingsFromFile converts parsed tinify.yml values into a settings layer,
// validating enums and the resize block.
func settingsFromFile(f *config.File) (*settings, error) {
	out := &settings{
		overwrite: f.Overwrite,
		suffix:    f.Suffix,
		quiet:     f.Quiet,
	}
	if f.ReturnPath != nil {
		mode := PathMode(*f.ReturnPath)
		out.pathMode = &mode
	}
	if f.Resize != nil {
		spec := ResizeSpec{
			Method: ResizeMethod(f.Resize.Method),
			Width:  f.Resize.Width,
			Height: f.Resize.Height,
		}
		out.resize = &spec
	}
	if err := validateSettings(out); err != nil {
		return nil, err
	}
	return out, nil
}

// newClient builds the API client for one run, honoring the session's
// injected HTTP client and base URL.
func (s *Session) newClient(apiKey string) *tinypng.Client {
	var opts []tinypng.ClientOption
	if s.httpClient != nil {
		opts = append(opts, tinypng.WithHTTPClient(s.httpClient))
	}
	if s.baseURL != "" {
		opts = append(opts, tinypng.WithBaseURL(s.baseURL))
	}
	return tinypng.NewClient(apiKey, opts...)
}
