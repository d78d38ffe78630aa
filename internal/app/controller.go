package app

import (
	"context"
	"fmt"

	"github.com/DIMO-Network/skland-sign/pkg/signer"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// DeviceIDSource returns the device id of the running process.
type DeviceIDSource interface {
	DeviceID(ctx context.Context) (string, error)
}

// AttendanceRunner runs daily attendance for account tokens.
type AttendanceRunner interface {
	SignAll(ctx context.Context, tokens []string) ([]string, error)
}

type Controller struct {
	deviceIDs  DeviceIDSource
	attendance AttendanceRunner
	signer     *signer.Signer
	logger     *zerolog.Logger
}

func NewController(deviceIDs DeviceIDSource, attendance AttendanceRunner, logger *zerolog.Logger) *Controller {
	return &Controller{
		deviceIDs:  deviceIDs,
		attendance: attendance,
		signer:     &signer.Signer{},
		logger:     logger,
	}
}

// SignRequest is the body of POST /v1/sign.
type SignRequest struct {
	Credential  string `json:"credential"`
	Path        string `json:"path"`
	BodyOrQuery string `json:"bodyOrQuery"`
}

// SignResponse carries the signature and the headers to attach to the signed request.
type SignResponse struct {
	Sign    string            `json:"sign"`
	Headers map[string]string `json:"headers"`
}

// AttendanceRequest is the body of POST /v1/attendance. Token and Tokens are merged.
type AttendanceRequest struct {
	Token  string   `json:"token"`
	Tokens []string `json:"tokens"`
}

// GetDeviceID returns the device id of the process, performing the handshake on first use.
func (c *Controller) GetDeviceID(ctx *fiber.Ctx) error {
	deviceID, err := c.deviceIDs.DeviceID(c.userContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to acquire device id: %w", err)
	}
	return ctx.JSON(map[string]string{"deviceId": deviceID})
}

// SignRequest signs a caller supplied request with the device id of the process.
func (c *Controller) SignRequest(ctx *fiber.Ctx) error {
	var req SignRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	deviceID, err := c.deviceIDs.DeviceID(c.userContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to acquire device id: %w", err)
	}
	headers, err := c.signer.Sign(req.Credential, req.Path, req.BodyOrQuery, deviceID)
	if err != nil {
		return err
	}
	return ctx.JSON(SignResponse{Sign: headers.Sign, Headers: headers.Map()})
}

// RunAttendance runs daily attendance for the tokens in the body and returns one line per role.
func (c *Controller) RunAttendance(ctx *fiber.Ctx) error {
	var req AttendanceRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	tokens := req.Tokens
	if req.Token != "" {
		tokens = append([]string{req.Token}, tokens...)
	}
	if len(tokens) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "No token provided")
	}
	results, err := c.attendance.SignAll(c.userContext(ctx), tokens)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to run attendance")
		return fiber.NewError(fiber.StatusBadGateway, "Failed to run attendance")
	}
	return ctx.JSON(map[string]any{"data": results})
}

func (c *Controller) userContext(ctx *fiber.Ctx) context.Context {
	return c.logger.WithContext(ctx.UserContext())
}
