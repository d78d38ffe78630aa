package attest

// AttestError is a typed error for attestation failures.
type AttestError string

func (e AttestError) Error() string { return string(e) }

const (
	// ErrNetworkFailure is returned when the attestation endpoint could not be reached or timed out.
	ErrNetworkFailure = AttestError("attestation network failure")
	// ErrProtocolFailure is returned when the endpoint answered with a non-success code or an
	// unusable response.
	ErrProtocolFailure = AttestError("attestation protocol failure")
	// ErrExhaustedRetries is returned when every configured attempt failed.
	// The last attempt's error is wrapped as well.
	ErrExhaustedRetries = AttestError("attestation retries exhausted")
	// ErrInvalidSettings is returned by New for unusable settings.
	ErrInvalidSettings = AttestError("invalid attestation settings")
)

const (
	// DefaultEndpoint is the device profile endpoint.
	DefaultEndpoint = "https://fp-it.portal101.cn/deviceprofile/v4"
	// SuccessCode is the response code of a successful attestation.
	SuccessCode = 1100
	// DeviceIDPrefix is prepended to the device id returned by the backend.
	DeviceIDPrefix = "B"

	compressMode = 2
	encodeMode   = 5
)

// Request is the envelope posted to the attestation endpoint.
type Request struct {
	AppID        string `json:"appId"`
	Compress     int    `json:"compress"`
	Data         string `json:"data"`
	Encode       int    `json:"encode"`
	EP           string `json:"ep"`
	Organization string `json:"organization"`
	OS           string `json:"os"`
}
