package logging

import (
	"os"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StartupLogger collects a binary's identity, the stores it talks to and its
// feature flags, then emits a single structured zerolog event summarising how
// the process was configured. One line per start makes it easy to see which
// cache backend a kiosk or a Lambda was actually running with.
type StartupLogger struct {
	name         string
	version      string
	initDuration time.Duration

	stores   map[string]string
	upstream map[string]string
	features map[string]bool
	config   map[string]string
}

// NewStartupLogger creates a StartupLogger for the given binary name
// (e.g. "sarassure-proxy", "invalidate-lambda").
func NewStartupLogger(name string) *StartupLogger {
	return &StartupLogger{
		name:     name,
		stores:   make(map[string]string),
		upstream: make(map[string]string),
		features: make(map[string]bool),
		config:   make(map[string]string),
	}
}

// Version sets the build version baked into the binary.
func (s *StartupLogger) Version(v string) *StartupLogger {
	s.version = v
	return s
}

// Store registers a cache store (label → backend description).
func (s *StartupLogger) Store(label, backend string) *StartupLogger {
	s.stores[label] = backend
	return s
}

// Upstream registers a remote origin the process forwards to.
func (s *StartupLogger) Upstream(label, url string) *StartupLogger {
	s.upstream[label] = url
	return s
}

// Feature registers a boolean feature flag (e.g. "eventBridge", "errorSink").
func (s *StartupLogger) Feature(name string, enabled bool) *StartupLogger {
	s.features[name] = enabled
	return s
}

// Config registers a non-sensitive configuration key-value pair.
// Never pass secrets here.
func (s *StartupLogger) Config(key, value string) *StartupLogger {
	s.config[key] = value
	return s
}

// InitDuration records how long initialization took.
func (s *StartupLogger) InitDuration(d time.Duration) *StartupLogger {
	s.initDuration = d
	return s
}

// Log emits a single structured INFO log event with all collected information.
func (s *StartupLogger) Log() {
	evt := log.Info()

	process := zerolog.Dict().
		Str("name", s.name).
		Str("goVersion", runtime.Version()).
		Str("arch", runtime.GOARCH).
		Str("logLevel", os.Getenv(LevelEnvVar))
	if s.version != "" {
		process = process.Str("version", s.version)
	}
	if fn := os.Getenv("AWS_LAMBDA_FUNCTION_NAME"); fn != "" {
		process = process.Str("functionName", fn).Str("region", os.Getenv("AWS_REGION"))
	}
	evt = evt.Dict("process", process)

	if len(s.stores) > 0 {
		evt = evt.Dict("stores", dictFromMap(s.stores))
	}
	if len(s.upstream) > 0 {
		evt = evt.Dict("upstream", dictFromMap(s.upstream))
	}
	if len(s.features) > 0 {
		d := zerolog.Dict()
		for k, v := range s.features {
			d = d.Bool(k, v)
		}
		evt = evt.Dict("features", d)
	}
	if len(s.config) > 0 {
		evt = evt.Dict("config", dictFromMap(s.config))
	}
	if s.initDuration > 0 {
		evt = evt.Dur("initDuration", s.initDuration)
	}

	evt.Msg("Startup complete")
}

func dictFromMap(m map[string]string) *zerolog.Event {
	d := zerolog.Dict()
	for k, v := range m {
		d = d.Str(k, v)
	}
	return d
}
