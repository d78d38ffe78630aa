package server

import (
	"fmt"
	"io"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// DefaultLogger creates a new logger with the given app name and the short vcs revision when
// the binary was built from a repository.
func DefaultLogger(appName string, writer io.Writer) *zerolog.Logger {
	logger := zerolog.New(writer).With().Timestamp().Str("app", appName).Logger()
	if commit := revision(); commit != "" {
		logger = logger.With().Str("commit", commit).Logger()
	}
	return &logger
}

// SetLevel sets the global log level if level is not empty.
func SetLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) == 40 {
			return s.Value[:7]
		}
	}
	return ""
}
