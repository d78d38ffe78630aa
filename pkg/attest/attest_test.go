package attest_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DIMO-Network/skland-sign/pkg/attest"
	"github.com/DIMO-Network/skland-sign/pkg/packer"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// setupClient creates a client whose transport is handled by fn.
func setupClient(t *testing.T, maxRetries int, fn roundTripFunc) (*attest.Client, *rsa.PrivateKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	settings, err := attest.DefaultSettings()
	require.NoError(t, err)
	settings.PublicKey = &priv.PublicKey
	settings.MaxRetries = maxRetries
	settings.AttemptTimeout = time.Second

	client, err := attest.New(settings, &http.Client{Transport: fn})
	require.NoError(t, err)
	return client, priv
}

func TestAcquireDeviceIDPrefix(t *testing.T) {
	t.Parallel()
	client, _ := setupClient(t, 1, func(*http.Request) (*http.Response, error) {
		return jsonResponse(`{"code":1100,"detail":{"deviceId":"Q1"}}`), nil
	})

	deviceID, err := client.AcquireDeviceID(t.Context())
	require.NoError(t, err)
	require.Equal(t, "BQ1", deviceID)
}

func TestAcquireDeviceIDRetries(t *testing.T) {
	t.Parallel()

	t.Run("fails twice then succeeds", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		client, _ := setupClient(t, 3, func(*http.Request) (*http.Response, error) {
			if calls.Add(1) <= 2 {
				return nil, errors.New("connection reset")
			}
			return jsonResponse(`{"code":1100,"detail":{"deviceId":"abc"}}`), nil
		})

		deviceID, err := client.AcquireDeviceID(t.Context())
		require.NoError(t, err)
		require.Equal(t, "Babc", deviceID)
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("always fails", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		client, _ := setupClient(t, 3, func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return nil, errors.New("connection refused")
		})

		_, err := client.AcquireDeviceID(t.Context())
		require.ErrorIs(t, err, attest.ErrExhaustedRetries)
		require.ErrorIs(t, err, attest.ErrNetworkFailure)
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("protocol failure is retried", func(t *testing.T) {
		t.Parallel()
		var calls atomic.Int32
		client, _ := setupClient(t, 2, func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return jsonResponse(`{"code":1902,"message":"bad data"}`), nil
		})

		_, err := client.AcquireDeviceID(t.Context())
		require.ErrorIs(t, err, attest.ErrExhaustedRetries)
		require.ErrorIs(t, err, attest.ErrProtocolFailure)
		require.Equal(t, int32(2), calls.Load())
	})
}

func TestAttemptProtocolFailures(t *testing.T) {
	t.Parallel()
	for name, body := range map[string]string{
		"not json":          `<html>busy</html>`,
		"missing code":      `{"detail":{"deviceId":"x"}}`,
		"wrong code":        `{"code":1901}`,
		"missing device id": `{"code":1100,"detail":{}}`,
		"empty device id":   `{"code":1100,"detail":{"deviceId":""}}`,
		"numeric device id": `{"code":1100,"detail":{"deviceId":12}}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client, _ := setupClient(t, 1, func(*http.Request) (*http.Response, error) {
				return jsonResponse(body), nil
			})
			_, err := client.Attempt(t.Context())
			require.ErrorIs(t, err, attest.ErrProtocolFailure)
		})
	}
}

func TestAttemptTimeout(t *testing.T) {
	t.Parallel()
	client, _ := setupClient(t, 1, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})

	_, err := client.Attempt(t.Context())
	require.ErrorIs(t, err, attest.ErrNetworkFailure)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAttemptRequestEnvelope(t *testing.T) {
	t.Parallel()
	var (
		mu       sync.Mutex
		requests []attest.Request
	)
	client, priv := setupClient(t, 1, func(req *http.Request) (*http.Response, error) {
		require.Equal(t, http.MethodPost, req.Method)
		require.Equal(t, attest.DefaultEndpoint, req.URL.String())
		require.Equal(t, "application/json", req.Header.Get("Content-Type"))
		var body attest.Request
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		mu.Lock()
		requests = append(requests, body)
		mu.Unlock()
		return jsonResponse(`{"code":1100,"detail":{"deviceId":"Q1"}}`), nil
	})

	for range 2 {
		_, err := client.Attempt(t.Context())
		require.NoError(t, err)
	}
	require.Len(t, requests, 2)

	var identifiers [][]byte
	for _, body := range requests {
		require.Equal(t, "default", body.AppID)
		require.Equal(t, 2, body.Compress)
		require.Equal(t, 5, body.Encode)
		require.Equal(t, "web", body.OS)
		require.Equal(t, "UWXspnCCJN4sfYlNfqps", body.Organization)

		wrapped, err := base64.StdEncoding.DecodeString(body.EP)
		require.NoError(t, err)
		identifier, err := rsa.DecryptPKCS1v15(rand.Reader, priv, wrapped)
		require.NoError(t, err)
		identifiers = append(identifiers, identifier)

		raw, err := packer.Unpack(body.Data, packer.SessionFromIdentifier(identifier).Key)
		require.NoError(t, err)
		var record map[string]any
		require.NoError(t, json.Unmarshal(raw, &record))
		require.Contains(t, record, "py")
		require.Contains(t, record, "smid")
		require.Equal(t, float64(102), record["protocol"])
		require.Equal(t, "3.0.0", record["version"])
		require.NotContains(t, record, "tn")
	}
	require.NotEqual(t, identifiers[0], identifiers[1])
}

func TestNewInvalidSettings(t *testing.T) {
	t.Parallel()
	settings, err := attest.DefaultSettings()
	require.NoError(t, err)
	settings.MaxRetries = 0
	client, err := attest.New(settings, nil)
	require.ErrorIs(t, err, attest.ErrInvalidSettings)
	require.Nil(t, client)

	settings.MaxRetries = 1
	settings.PublicKey = nil
	_, err = attest.New(settings, nil)
	require.ErrorIs(t, err, attest.ErrInvalidSettings)

	for _, timeout := range []time.Duration{0, -time.Second} {
		settings, err := attest.DefaultSettings()
		require.NoError(t, err)
		settings.AttemptTimeout = timeout
		var calls atomic.Int32
		client, err := attest.New(settings, &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls.Add(1)
			return jsonResponse(`{"code":1100,"detail":{"deviceId":"Q1"}}`), nil
		})})
		require.ErrorIs(t, err, attest.ErrInvalidSettings, timeout)
		require.Nil(t, client)
		require.Zero(t, calls.Load())
	}
}

type countingAcquirer struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingAcquirer) AcquireDeviceID(context.Context) (string, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return "", attest.ErrExhaustedRetries
	}
	time.Sleep(10 * time.Millisecond)
	return "Bcached", nil
}

func TestCache(t *testing.T) {
	t.Parallel()
	acquirer := &countingAcquirer{}
	acquirer.fail.Store(true)
	cache := attest.NewCache(acquirer)

	_, err := cache.DeviceID(t.Context())
	require.ErrorIs(t, err, attest.ErrExhaustedRetries)

	acquirer.fail.Store(false)
	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = cache.DeviceID(t.Context())
		}()
	}
	wg.Wait()
	for i := range 8 {
		require.NoError(t, errs[i])
		require.Equal(t, "Bcached", ids[i])
	}

	id, err := cache.DeviceID(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Bcached", id)
	require.Equal(t, int32(2), acquirer.calls.Load())
}

type blockingAcquirer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (b *blockingAcquirer) AcquireDeviceID(ctx context.Context) (string, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-b.release:
		return "Bshared", nil
	}
}

func TestCacheCallerCancellation(t *testing.T) {
	t.Parallel()
	acquirer := &blockingAcquirer{started: make(chan struct{}), release: make(chan struct{})}
	cache := attest.NewCache(acquirer)

	firstCtx, cancelFirst := context.WithCancel(t.Context())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cache.DeviceID(firstCtx)
		firstErr <- err
	}()
	<-acquirer.started

	type result struct {
		id  string
		err error
	}
	second := make(chan result, 1)
	go func() {
		id, err := cache.DeviceID(t.Context())
		second <- result{id: id, err: err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(acquirer.release)
	res := <-second
	require.NoError(t, res.err)
	require.Equal(t, "Bshared", res.id)
	require.Equal(t, int32(1), acquirer.calls.Load())

	id, err := cache.DeviceID(t.Context())
	require.NoError(t, err)
	require.Equal(t, "Bshared", id)
}
