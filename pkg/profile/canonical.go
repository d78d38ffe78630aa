package profile

import (
	"crypto/md5" //nolint:gosec // protocol mandated
	"encoding/hex"
	"encoding/json"
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// numericScale is fixed by the attestation protocol.
const numericScale = 10000

// Canonical flattens rec into the string the integrity token is computed over.
// Keys are visited in lexicographic order at every level, numbers are multiplied by 10000,
// nested records are inlined and everything else is rendered as text. No separators are used.
func Canonical(rec *Record) string {
	var sb strings.Builder
	writeCanonical(&sb, rec)
	return sb.String()
}

func writeCanonical(sb *strings.Builder, rec *Record) {
	keys := rec.Keys()
	sort.Strings(keys)
	for _, k := range keys {
		v, _ := rec.Get(k)
		if nested, ok := v.(*Record); ok {
			writeCanonical(sb, nested)
			continue
		}
		if scaled, ok := scaleNumber(v); ok {
			sb.WriteString(scaled)
			continue
		}
		sb.WriteString(valueString(v))
	}
}

// scaleNumber renders v multiplied by 10000 when v is a number.
// Integers are multiplied in arbitrary precision; millisecond timestamps overflow float64 precision.
func scaleNumber(v any) (string, bool) {
	n := new(big.Int)
	switch val := v.(type) {
	case int:
		n.SetInt64(int64(val))
	case int8:
		n.SetInt64(int64(val))
	case int16:
		n.SetInt64(int64(val))
	case int32:
		n.SetInt64(int64(val))
	case int64:
		n.SetInt64(val)
	case uint:
		n.SetUint64(uint64(val))
	case uint8:
		n.SetUint64(uint64(val))
	case uint16:
		n.SetUint64(uint64(val))
	case uint32:
		n.SetUint64(uint64(val))
	case uint64:
		n.SetUint64(val)
	case float32:
		return scaleFloat(float32Value(val)), true
	case float64:
		return scaleFloat(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			n.SetInt64(i)
			break
		}
		f, err := val.Float64()
		if err != nil {
			return "", false
		}
		return scaleFloat(f), true
	default:
		return "", false
	}
	return n.Mul(n, big.NewInt(numericScale)).String(), true
}

func scaleFloat(v float64) string {
	return strconv.FormatFloat(v*numericScale, 'f', -1, 64)
}

// float32Value widens v through its shortest decimal form so 0.1 stays 0.1.
func float32Value(v float32) float64 {
	f, _ := strconv.ParseFloat(strconv.FormatFloat(float64(v), 'f', -1, 32), 64)
	return f
}

// IntegrityToken returns the lowercase hex MD5 of the canonical form of rec.
func IntegrityToken(rec *Record) string {
	sum := md5.Sum([]byte(Canonical(rec))) //nolint:gosec // protocol mandated
	return hex.EncodeToString(sum[:])
}
