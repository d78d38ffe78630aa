package app

import (
	"errors"
	"strings"

	"github.com/DIMO-Network/skland-sign/pkg/attest"
	"github.com/DIMO-Network/skland-sign/pkg/signer"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// CreateWebServer creates the signing API with the given logger, device id source and attendance runner.
func CreateWebServer(logger *zerolog.Logger, deviceIDs DeviceIDSource, attendance AttendanceRunner) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return ErrorHandler(c, err, logger)
		},
		DisableStartupMessage: true,
	})
	ctrl := NewController(deviceIDs, attendance, logger)
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(cors.New())
	app.Get("/", HealthCheck)

	v1 := app.Group("/v1")
	v1.Get("/device-id", ctrl.GetDeviceID)
	v1.Post("/sign", ctrl.SignRequest)
	v1.Post("/attendance", ctrl.RunAttendance)
	return app
}

// HealthCheck godoc
// @Summary Show the status of server.
// @Description get the status of server.
// @Tags root
// @Accept */*
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func HealthCheck(ctx *fiber.Ctx) error {
	res := map[string]any{
		"data": "Server is up and running",
	}

	return ctx.JSON(res)
}

// ErrorHandler logs handler errors and renders them as codeResp JSON. Invalid signing input
// maps to 400 and attestation failures to 502; anything else not raised as a fiber.Error is a 500.
func ErrorHandler(ctx *fiber.Ctx, err error, logger *zerolog.Logger) error {
	code, message := statusFor(err)

	// don't log not found errors
	if code != fiber.StatusNotFound {
		logger.Err(err).Int("httpStatusCode", code).
			Str("httpPath", strings.TrimPrefix(ctx.Path(), "/")).
			Str("httpMethod", ctx.Method()).
			Msg("caught an error from http request")
	}

	return ctx.Status(code).JSON(codeResp{Code: code, Message: message})
}

func statusFor(err error) (int, string) {
	var fiberErr *fiber.Error
	var attestErr attest.AttestError
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code, fiberErr.Message
	case errors.Is(err, signer.ErrInvalidInput):
		return fiber.StatusBadRequest, err.Error()
	case errors.As(err, &attestErr):
		return fiber.StatusBadGateway, "Failed to acquire device id"
	default:
		return fiber.StatusInternalServerError, "Internal error."
	}
}

type codeResp struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}
