// Package signer computes the per-request signature headers of authenticated game API calls.
package signer

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // protocol mandated
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// SignError is a typed error for signing failures.
type SignError string

func (e SignError) Error() string { return string(e) }

// ErrInvalidInput is returned for inputs that cannot be signed.
const ErrInvalidInput = SignError("invalid signing input")

const (
	// Platform is the platform code of the web client.
	Platform = "3"
	// ClientVersion is the reported client version.
	ClientVersion = "1.0.0"
	// ClockSkew is subtracted from the current time.
	ClockSkew = 2 * time.Second
)

// HeaderCa is the header block covered by the signature. Field order is part of the protocol.
type HeaderCa struct {
	Platform      string `json:"platform"`
	Timestamp     string `json:"timestamp"`
	DeviceID      string `json:"dId"`
	ClientVersion string `json:"vName"`
}

// SignatureHeaders is the result of signing a request.
type SignatureHeaders struct {
	Sign     string   `json:"sign"`
	HeaderCa HeaderCa `json:"headerCa"`
}

// Apply sets the signature headers on h.
func (s *SignatureHeaders) Apply(h http.Header) {
	for k, v := range s.Map() {
		h.Set(k, v)
	}
}

// Map returns the signature headers keyed by wire name.
func (s *SignatureHeaders) Map() map[string]string {
	return map[string]string{
		"sign":      s.Sign,
		"platform":  s.HeaderCa.Platform,
		"timestamp": s.HeaderCa.Timestamp,
		"dId":       s.HeaderCa.DeviceID,
		"vName":     s.HeaderCa.ClientVersion,
	}
}

// Signer signs requests. The zero value uses the system clock.
type Signer struct {
	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// Sign signs a request with the system clock.
func Sign(credential, path, bodyOrQuery, deviceID string) (*SignatureHeaders, error) {
	return (&Signer{}).Sign(credential, path, bodyOrQuery, deviceID)
}

// Sign computes MD5(hex(HMAC-SHA256(credential, path+bodyOrQuery+timestamp+headerCaJSON))).
// bodyOrQuery is the request body, or the query string without '?' for GET requests.
func (s *Signer) Sign(credential, path, bodyOrQuery, deviceID string) (*SignatureHeaders, error) {
	if err := validate(credential, path, deviceID); err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(s.now().Add(-ClockSkew).Unix(), 10)
	headerCa := HeaderCa{
		Platform:      Platform,
		Timestamp:     timestamp,
		DeviceID:      deviceID,
		ClientVersion: ClientVersion,
	}
	headerCaJSON, err := marshalCompact(headerCa)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header block: %w", err)
	}

	mac := hmac.New(sha256.New, []byte(credential))
	mac.Write([]byte(path))
	mac.Write([]byte(bodyOrQuery))
	mac.Write([]byte(timestamp))
	mac.Write(headerCaJSON)
	hexMAC := hex.EncodeToString(mac.Sum(nil))

	sum := md5.Sum([]byte(hexMAC)) //nolint:gosec // protocol mandated
	signs.Inc()
	return &SignatureHeaders{
		Sign:     hex.EncodeToString(sum[:]),
		HeaderCa: headerCa,
	}, nil
}

func (s *Signer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func validate(credential, path, deviceID string) error {
	switch {
	case credential == "":
		return fmt.Errorf("%w: empty credential", ErrInvalidInput)
	case !strings.HasPrefix(path, "/"):
		return fmt.Errorf("%w: path %q is not absolute", ErrInvalidInput, path)
	case strings.ContainsAny(path, "?#"):
		return fmt.Errorf("%w: path %q contains a query or fragment", ErrInvalidInput, path)
	case deviceID == "":
		return fmt.Errorf("%w: empty device id", ErrInvalidInput)
	}
	return nil
}

// marshalCompact encodes v without HTML escaping.
func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
