package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DIMO-Network/skland-sign/internal/client/skland"
	"github.com/DIMO-Network/skland-sign/internal/config"
	"github.com/DIMO-Network/skland-sign/pkg/attest"
	"github.com/DIMO-Network/skland-sign/pkg/server"
	"github.com/caarlos0/env/v11"
)

// skland-sign runs daily attendance once for the tokens in SKLAND_TOKENS.
func main() {
	logger := server.DefaultLogger("skland-sign", os.Stdout)

	settings, err := config.FromEnvMap(env.ToMap(os.Environ()))
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't load settings.")
	}
	if err := server.SetLevel(settings.LogLevel); err != nil {
		logger.Fatal().Err(err).Msg("Couldn't set log level.")
	}
	tokens := settings.Tokens()
	if len(tokens) == 0 {
		logger.Fatal().Msg("SKLAND_TOKENS is empty.")
	}

	attestSettings, err := attest.DefaultSettings()
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't load attestation settings.")
	}
	attestSettings.MaxRetries = settings.MaxRetries
	attestSettings.AttemptTimeout = settings.AttemptTimeout
	if settings.AttestationURL != "" {
		attestSettings.Endpoint = settings.AttestationURL
	}
	httpClient := &http.Client{Timeout: time.Minute}
	attestClient, err := attest.New(attestSettings, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't create attestation client.")
	}
	sklandSvc, err := skland.NewService(skland.DefaultGrantURL, skland.DefaultBaseURL, attest.NewCache(attestClient), httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't create skland client.")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithContext(ctx)

	logger.Info().Int("tokens", len(tokens)).Msg("Starting attendance.")
	results, err := sklandSvc.SignAll(ctx, tokens)
	if err != nil {
		logger.Fatal().Err(err).Msg("Attendance failed.")
	}
	for _, line := range results {
		logger.Info().Msg(line)
	}
}
