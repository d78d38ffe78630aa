package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings contains the application config
type Settings struct {
	Environment string `env:"ENVIRONMENT" yaml:"ENVIRONMENT"`
	LogLevel    string `env:"LOG_LEVEL"   yaml:"LOG_LEVEL"`
	Port        int    `env:"PORT"        yaml:"PORT"`
	MonPort     int    `env:"MON_PORT"    yaml:"MON_PORT"`

	// MaxRetries is the number of device id handshake attempts.
	MaxRetries int `env:"MAX_RETRIES" envDefault:"3" yaml:"MAX_RETRIES"`
	// AttemptTimeout bounds a single handshake attempt.
	AttemptTimeout time.Duration `env:"ATTEMPT_TIMEOUT" envDefault:"30s" yaml:"ATTEMPT_TIMEOUT"`
	// AttestationURL overrides the device profile endpoint.
	AttestationURL string `env:"ATTESTATION_URL" yaml:"ATTESTATION_URL"`
	// SklandTokens is a comma separated list of account tokens for the one-shot run.
	SklandTokens string `env:"SKLAND_TOKENS" yaml:"SKLAND_TOKENS"`
}

// ErrInvalidSettings is returned by Validate.
var ErrInvalidSettings = errors.New("invalid settings")

// Validate fills defaults for unset values and checks the rest.
func (s *Settings) Validate() error {
	if s.MaxRetries == 0 {
		s.MaxRetries = 3
	}
	if s.AttemptTimeout == 0 {
		s.AttemptTimeout = 30 * time.Second
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("%w: MAX_RETRIES must be at least 1, got %d", ErrInvalidSettings, s.MaxRetries)
	}
	if s.AttemptTimeout < 0 {
		return fmt.Errorf("%w: ATTEMPT_TIMEOUT must be positive, got %s", ErrInvalidSettings, s.AttemptTimeout)
	}
	return nil
}

// Tokens splits SklandTokens and drops empty entries.
func (s *Settings) Tokens() []string {
	var tokens []string
	for _, token := range strings.Split(s.SklandTokens, ",") {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// FromEnvMap parses settings from an environment map and validates them.
func FromEnvMap(envMap map[string]string) (Settings, error) {
	settings, err := env.ParseAsWithOptions[Settings](env.Options{Environment: envMap})
	if err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment variables: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}
