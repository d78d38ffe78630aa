// Package attest exchanges an encrypted device profile for a device id at the attestation backend.
package attest

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DIMO-Network/skland-sign/pkg/packer"
	"github.com/DIMO-Network/skland-sign/pkg/profile"
	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

// Settings configures a Client.
type Settings struct {
	// Endpoint is the attestation URL.
	Endpoint string
	// Organization and AppID identify the SDK integration.
	Organization string
	AppID        string
	// PublicKey wraps the session identifier.
	PublicKey *rsa.PublicKey
	// MaxRetries is the number of handshake attempts, at least 1.
	MaxRetries int
	// AttemptTimeout bounds a single handshake attempt, greater than zero.
	AttemptTimeout time.Duration
}

// DefaultSettings returns the settings of the production backend.
func DefaultSettings() (Settings, error) {
	pub, err := packer.ParsePublicKey(packer.DefaultPublicKey)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		Endpoint:       DefaultEndpoint,
		Organization:   profile.DefaultOrganization,
		AppID:          profile.DefaultAppID,
		PublicKey:      pub,
		MaxRetries:     3,
		AttemptTimeout: 30 * time.Second,
	}, nil
}

// Client performs device id handshakes. It holds no per-attempt state and is safe for
// concurrent use.
type Client struct {
	settings   Settings
	httpClient *http.Client
	builder    *profile.Builder
}

// New creates a Client. A nil httpClient uses http.DefaultClient.
func New(settings Settings, httpClient *http.Client) (*Client, error) {
	if settings.MaxRetries < 1 {
		return nil, fmt.Errorf("%w: max retries must be at least 1, got %d", ErrInvalidSettings, settings.MaxRetries)
	}
	if settings.PublicKey == nil {
		return nil, fmt.Errorf("%w: public key is required", ErrInvalidSettings)
	}
	if settings.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrInvalidSettings)
	}
	if settings.AttemptTimeout <= 0 {
		return nil, fmt.Errorf("%w: attempt timeout must be positive, got %s", ErrInvalidSettings, settings.AttemptTimeout)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	builder := profile.NewBuilder()
	if settings.Organization != "" {
		builder.Organization = settings.Organization
	}
	if settings.AppID != "" {
		builder.AppID = settings.AppID
	}
	return &Client{
		settings:   settings,
		httpClient: httpClient,
		builder:    builder,
	}, nil
}

// AcquireDeviceID runs the handshake until it succeeds or MaxRetries attempts failed.
// Attempts run back to back and each one regenerates all random material.
func (c *Client) AcquireDeviceID(ctx context.Context) (string, error) {
	logger := zerolog.Ctx(ctx).With().Str("component", "attest").Logger()
	deviceID, err := retry.DoWithData(
		func() (string, error) {
			return c.Attempt(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.settings.MaxRetries)),
		retry.Delay(0),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("Device id attempt failed.")
		}),
	)
	if err != nil {
		acquisitions.WithLabelValues("failure").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("device id acquisition canceled: %w", ctxErr)
		}
		return "", fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, c.settings.MaxRetries, err)
	}
	acquisitions.WithLabelValues("success").Inc()
	logger.Debug().Msg("Acquired device id.")
	return deviceID, nil
}

// Attempt performs a single handshake.
func (c *Client) Attempt(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.AttemptTimeout)
	defer cancel()

	deviceID, err := c.attempt(ctx)
	attempts.WithLabelValues(resultLabel(err)).Inc()
	return deviceID, err
}

func (c *Client) attempt(ctx context.Context) (string, error) {
	body, err := c.buildRequest()
	if err != nil {
		return "", err
	}
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal attestation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.Endpoint, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create attestation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}
	defer resp.Body.Close() //nolint:errcheck // ignore error

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response body: %w", ErrNetworkFailure, err)
	}
	return parseResponse(resp.StatusCode, respBytes)
}

// buildRequest assembles, obfuscates, packs and wraps a fresh device profile.
func (c *Client) buildRequest() (*Request, error) {
	session, err := packer.NewSession()
	if err != nil {
		return nil, err
	}
	record, err := profile.Obfuscate(c.builder.Build())
	if err != nil {
		return nil, fmt.Errorf("failed to obfuscate device profile: %w", err)
	}
	data, err := packer.Pack(record, session.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to pack device profile: %w", err)
	}
	ep, err := session.Wrap(c.settings.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Request{
		AppID:        c.builder.AppID,
		Compress:     compressMode,
		Data:         data,
		Encode:       encodeMode,
		EP:           ep,
		Organization: c.builder.Organization,
		OS:           profile.OS,
	}, nil
}

func parseResponse(status int, body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("%w: unparsable response with status %d", ErrProtocolFailure, status)
	}
	code := gjson.GetBytes(body, "code")
	if !code.Exists() {
		return "", fmt.Errorf("%w: response has no code, status %d", ErrProtocolFailure, status)
	}
	if code.Int() != SuccessCode {
		return "", fmt.Errorf("%w: code=%s", ErrProtocolFailure, code.Raw)
	}
	deviceID := gjson.GetBytes(body, "detail.deviceId")
	if deviceID.Type != gjson.String || deviceID.Str == "" {
		return "", fmt.Errorf("%w: response has no device id", ErrProtocolFailure)
	}
	return DeviceIDPrefix + deviceID.Str, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrNetworkFailure):
		return "network"
	case errors.Is(err, ErrProtocolFailure):
		return "protocol"
	default:
		return "internal"
	}
}
