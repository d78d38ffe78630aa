package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DIMO-Network/skland-sign/internal/app"
	"github.com/DIMO-Network/skland-sign/pkg/attest"
	"github.com/DIMO-Network/skland-sign/pkg/signer"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeDeviceIDs struct {
	id  string
	err error
}

func (f *fakeDeviceIDs) DeviceID(context.Context) (string, error) {
	return f.id, f.err
}

type fakeAttendance struct {
	tokens []string
	lines  []string
	err    error
}

func (f *fakeAttendance) SignAll(_ context.Context, tokens []string) ([]string, error) {
	f.tokens = tokens
	return f.lines, f.err
}

func doRequest(t *testing.T, deviceIDs app.DeviceIDSource, attendance app.AttendanceRunner, method, path, body string) (int, map[string]any) {
	t.Helper()
	logger := zerolog.Nop()
	webApp := app.CreateWebServer(&logger, deviceIDs, attendance)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := webApp.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()
	status, body := doRequest(t, &fakeDeviceIDs{}, &fakeAttendance{}, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Server is up and running", body["data"])
}

func TestGetDeviceID(t *testing.T) {
	t.Parallel()
	status, body := doRequest(t, &fakeDeviceIDs{id: "Bdevice"}, &fakeAttendance{}, http.MethodGet, "/v1/device-id", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "Bdevice", body["deviceId"])

	exhausted := fmt.Errorf("%w after 3 attempts: %w", attest.ErrExhaustedRetries, attest.ErrNetworkFailure)
	status, body = doRequest(t, &fakeDeviceIDs{err: exhausted}, &fakeAttendance{}, http.MethodGet, "/v1/device-id", "")
	require.Equal(t, http.StatusBadGateway, status)
	require.Equal(t, "Failed to acquire device id", body["message"])

	status, body = doRequest(t, &fakeDeviceIDs{err: errors.New("disk on fire")}, &fakeAttendance{}, http.MethodGet, "/v1/device-id", "")
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Internal error.", body["message"])
}

func TestSignRequest(t *testing.T) {
	t.Parallel()
	deviceIDs := &fakeDeviceIDs{id: "Bxyz"}
	status, body := doRequest(t, deviceIDs, &fakeAttendance{}, http.MethodPost, "/v1/sign",
		`{"credential":"abc","path":"/api/v1/game/attendance","bodyOrQuery":"{\"uid\":\"1\"}"}`)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["sign"], 32)

	headers, ok := body["headers"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, body["sign"], headers["sign"])
	require.Equal(t, "3", headers["platform"])
	require.Equal(t, "Bxyz", headers["dId"])
	require.Equal(t, "1.0.0", headers["vName"])
	require.NotEmpty(t, headers["timestamp"])
}

func TestSignRequestInvalid(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"no credential":  `{"path":"/api"}`,
		"relative path":  `{"credential":"abc","path":"api"}`,
		"malformed body": `{"credential":`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			status, resp := doRequest(t, &fakeDeviceIDs{id: "B1"}, &fakeAttendance{}, http.MethodPost, "/v1/sign", body)
			require.Equal(t, http.StatusBadRequest, status)
			require.EqualValues(t, http.StatusBadRequest, resp["code"])
			if name != "malformed body" {
				require.Contains(t, resp["message"], signer.ErrInvalidInput.Error())
			}
		})
	}
}

func TestRunAttendance(t *testing.T) {
	t.Parallel()
	attendance := &fakeAttendance{lines: []string{"[明日方舟]Doctor(官服) already attended today"}}
	status, body := doRequest(t, &fakeDeviceIDs{id: "B1"}, attendance, http.MethodPost, "/v1/attendance",
		`{"token":"a","tokens":["b"]}`)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, []any{"[明日方舟]Doctor(官服) already attended today"}, body["data"])
	require.Equal(t, []string{"a", "b"}, attendance.tokens)

	status, _ = doRequest(t, &fakeDeviceIDs{id: "B1"}, &fakeAttendance{}, http.MethodPost, "/v1/attendance", `{}`)
	require.Equal(t, http.StatusBadRequest, status)

	status, _ = doRequest(t, &fakeDeviceIDs{id: "B1"}, &fakeAttendance{err: errors.New("no device")}, http.MethodPost, "/v1/attendance", `{"token":"a"}`)
	require.Equal(t, http.StatusBadGateway, status)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	status, body := doRequest(t, &fakeDeviceIDs{}, &fakeAttendance{}, http.MethodGet, "/v2/nothing", "")
	require.Equal(t, http.StatusNotFound, status)
	require.EqualValues(t, http.StatusNotFound, body["code"])
}
