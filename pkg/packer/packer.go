// Package packer turns an obfuscated device profile into the encrypted payload of an attestation
// request and wraps the per-session key for the attestation backend.
package packer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"
)

// IV is the fixed CBC initialization vector of the payload cipher.
var IV = []byte("0102030405060708")

// CompressionLevel is the gzip level the web SDK uses.
const CompressionLevel = 2

// ErrMalformedPayload is returned by Unpack when the ciphertext cannot be decoded.
var ErrMalformedPayload = errors.New("malformed payload")

// Pack serializes record to compact JSON, gzips it deterministically, base64 encodes the
// compressed bytes and encrypts that text with AES-128-CBC under key. The result is hex encoded.
func Pack(record json.Marshaler, key SessionKey) (string, error) {
	raw, err := record.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}
	compressed, err := compress(raw)
	if err != nil {
		return "", fmt.Errorf("failed to compress record: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(compressed)
	ciphertext, err := encrypt([]byte(encoded), key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt record: %w", err)
	}
	return hex.EncodeToString(ciphertext), nil
}

// Unpack reverses Pack and returns the JSON text of the record.
func Unpack(data string, key SessionKey) ([]byte, error) {
	ciphertext, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrMalformedPayload, len(ciphertext))
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, IV).CryptBlocks(plain, ciphertext)
	plain = bytes.TrimRight(plain, "\x00")

	compressed, err := base64.StdEncoding.DecodeString(string(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	defer reader.Close() //nolint:errcheck
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return raw, nil
}

// compress writes a gzip stream with a zero modification time and no file name so equal input
// always yields equal output.
func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := gzip.NewWriterLevel(&buf, CompressionLevel)
	if err != nil {
		return nil, err
	}
	// klauspost writes the zero time.Time as a non-zero mtime.
	writer.ModTime = time.Unix(0, 0)
	if _, err := writer.Write(raw); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encrypt appends one zero byte, zero pads to the block size and encrypts with AES-CBC.
func encrypt(plain []byte, key SessionKey) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	padded := make([]byte, (len(plain)/aes.BlockSize+1)*aes.BlockSize)
	copy(padded, plain)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, IV).CryptBlocks(out, padded)
	return out, nil
}
