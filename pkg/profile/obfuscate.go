package profile

import (
	"crypto/des"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Obfuscate applies the policy table to every top level field of rec and returns a new record
// in the same key order. Fields without a policy are copied unchanged.
// The output only depends on the input.
func Obfuscate(rec *Record) (*Record, error) {
	out := NewRecord()
	for _, key := range rec.Keys() {
		value, _ := rec.Get(key)
		policy, ok := LookupPolicy(key)
		if !ok {
			out.Set(key, value)
			continue
		}
		switch p := policy.(type) {
		case Plain:
			out.Set(p.Name, value)
		case Encrypted:
			ciphertext, err := encryptField(p.Key, valueString(value))
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt field %q: %w", key, err)
			}
			out.Set(p.Name, ciphertext)
		default:
			return nil, fmt.Errorf("unknown policy %T for field %q", policy, key)
		}
	}
	return out, nil
}

// encryptField zero pads value to the next multiple of 8 bytes (a full block when already
// aligned), encrypts it with DES in ECB mode and base64 encodes the result.
func encryptField(key [8]byte, value string) (string, error) {
	block, err := des.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	bs := block.BlockSize()
	data := make([]byte, (len(value)/bs+1)*bs)
	copy(data, value)
	for i := 0; i < len(data); i += bs {
		block.Encrypt(data[i:i+bs], data[i:i+bs])
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// valueString renders a record value the way the backend decodes encrypted fields.
func valueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
