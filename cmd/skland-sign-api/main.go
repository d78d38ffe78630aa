package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/DIMO-Network/shared"
	"github.com/DIMO-Network/skland-sign/internal/app"
	"github.com/DIMO-Network/skland-sign/internal/client/skland"
	"github.com/DIMO-Network/skland-sign/internal/config"
	"github.com/DIMO-Network/skland-sign/pkg/attest"
	"github.com/DIMO-Network/skland-sign/pkg/server"
	"golang.org/x/sync/errgroup"
)

// @title                       Skland Sign API
// @version                     1.0
func main() {
	logger := server.DefaultLogger("skland-sign-api", os.Stdout)

	settingsFile := flag.String("settings", "settings.yaml", "settings file")
	flag.Parse()
	settings, err := shared.LoadConfig[config.Settings](*settingsFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't load settings.")
	}
	if err := settings.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid settings.")
	}
	if err := server.SetLevel(settings.LogLevel); err != nil {
		logger.Fatal().Err(err).Msg("Couldn't set log level.")
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
	deviceIDs := attest.NewCache(attestClient)

	sklandSvc, err := skland.NewService(skland.DefaultGrantURL, skland.DefaultBaseURL, deviceIDs, httpClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("Couldn't create skland client.")
	}

	webApp := app.CreateWebServer(logger, deviceIDs, sklandSvc)
	monApp := server.CreateMonitoringServer()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	group, groupCtx := errgroup.WithContext(ctx)

	logger.Info().Str("port", strconv.Itoa(settings.MonPort)).Msgf("Starting monitoring server")
	server.RunFiber(groupCtx, monApp, ":"+strconv.Itoa(settings.MonPort), group)
	logger.Info().Str("port", strconv.Itoa(settings.Port)).Msgf("Starting web server")
	server.RunFiber(groupCtx, webApp, ":"+strconv.Itoa(settings.Port), group)

	err = group.Wait()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to run servers.")
	}
}
