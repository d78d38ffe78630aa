package profile

// FieldPolicy decides how a single record field is transmitted.
// It is either Plain or Encrypted.
type FieldPolicy interface {
	// ObfuscatedName is the name the field is sent under.
	ObfuscatedName() string
}

// Plain renames a field and keeps its value.
type Plain struct {
	Name string
}

// ObfuscatedName implements FieldPolicy.
func (p Plain) ObfuscatedName() string { return p.Name }

// Encrypted renames a field and replaces its value with base64(DES-ECB(key, value)).
type Encrypted struct {
	Key  [8]byte
	Name string
}

// ObfuscatedName implements FieldPolicy.
func (e Encrypted) ObfuscatedName() string { return e.Name }

func encrypted(key, name string) Encrypted {
	var k [8]byte
	copy(k[:], key)
	return Encrypted{Key: k, Name: name}
}

// policies is the field policy table of the web device profile. It is never modified.
var policies = map[string]FieldPolicy{
	"appId":        encrypted("uy7mzc4h", "xx"),
	"box":          Plain{Name: "jf"},
	"canvas":       encrypted("snrn887t", "yk"),
	"clientSize":   encrypted("cpmjjgsu", "zx"),
	"organization": encrypted("78moqjfc", "dp"),
	"os":           encrypted("je6vk6t4", "pj"),
	"platform":     encrypted("pakxhcd2", "gm"),
	"plugins":      encrypted("v51m3pzl", "kq"),
	"pmf":          encrypted("2mdeslu3", "vw"),
	"protocol":     Plain{Name: "protocol"},
	"referer":      encrypted("y7bmrjlc", "ab"),
	"res":          encrypted("whxqm2a7", "hf"),
	"rtype":        encrypted("x8o2h2bl", "lo"),
	"sdkver":       encrypted("9q3dcxp2", "sc"),
	"status":       encrypted("2jbrxxw4", "an"),
	"subVersion":   encrypted("eo3i2puh", "ns"),
	"svm":          encrypted("fzj3kaeh", "qr"),
	"time":         encrypted("q2t3odsk", "nb"),
	"timezone":     encrypted("1uv05lj5", "as"),
	"tn":           encrypted("x9nzj1bp", "py"),
	"trees":        encrypted("acfs0xo4", "pi"),
	"ua":           encrypted("k92crp1t", "bj"),
	"url":          encrypted("y95hjkoo", "cf"),
	"version":      Plain{Name: "version"},
	"vpw":          encrypted("r9924ab5", "ca"),
}

// LookupPolicy returns the policy of a record field.
func LookupPolicy(field string) (FieldPolicy, bool) {
	policy, ok := policies[field]
	return policy, ok
}
