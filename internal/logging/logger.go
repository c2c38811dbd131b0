package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnvVar names the environment variable that selects the log level.
const LevelEnvVar = "SARASSURE_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// SARASSURE_LOG_LEVEL controls the log level: trace, debug, info, warn, error (default: info).
// SARASSURE_LOG_FORMAT=json switches from the console writer to raw JSON lines,
// which is what CloudWatch expects from the Lambda binaries.
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnvVar)))

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if os.Getenv("SARASSURE_LOG_FORMAT") == "json" {
		out = os.Stderr
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level. Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
