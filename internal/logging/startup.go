package logging

import (
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects tool identity, configuration and feature flags,
// then emits a single structured debug event summarising how the process
// was invoked. This makes troubleshooting reports reproducible: the event
// shows exactly which build ran with which switches.
type StartupLogger struct {
	name       string
	commitHash string
	buildTime  string

	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given tool name.
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// CommitHash sets the git commit hash baked into the binary at build time.
func (s *StartupLogger) CommitHash(hash string) *StartupLogger {
	s.commitHash = hash
	return s
}

// BuildTime sets the UTC build timestamp baked into the binary at build time.
func (s *StartupLogger) BuildTime(t string) *StartupLogger {
	s.buildTime = t
	return s
}

// Feature registers a boolean feature flag (e.g. "overwrite", "describe").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
// Credential values must never go through here.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// Log emits a single structured DEBUG log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Debug()

	toolDict := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv("TINYIMG_LOG_LEVEL"))

	if s.commitHash != "" {
		toolDict = toolDict.Str("commitHash", s.commitHash)
	}
	if s.buildTime != "" {
		toolDict = toolDict.Str("buildTime", s.buildTime)
	}
	evt = evt.Dict("tool", toolDict)

	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}

	if len(s.config) > 0 {
		d := zerolog.Dict()
		for k, v := range s.config {
			d = d.Str(k, v)
		}
		evt = evt.Dict("config", d)
	}

	evt.Msg("Startup complete")
}
