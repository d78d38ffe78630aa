package profile

import (
	"crypto/md5" //nolint:gosec // protocol mandated
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultOrganization is the organization id registered with the attestation backend.
	DefaultOrganization = "UWXspnCCJN4sfYlNfqps"
	// DefaultAppID is the app id registered with the attestation backend.
	DefaultAppID = "default"
	// OS is the os tag of the web SDK.
	OS = "web"

	protocolID = 102
	sdkVersion = "3.0.0"
	subVersion = "1.0.0"
)

// BrowserEnvironment is the synthetic browser identity reported in every device profile.
type BrowserEnvironment struct {
	Plugins    string
	UserAgent  string
	Canvas     string
	Timezone   int
	Platform   string
	URL        string
	Referer    string
	Resolution string
	ClientSize string
	Status     string
}

// DefaultBrowser is a desktop Edge on Windows in UTC+8.
var DefaultBrowser = BrowserEnvironment{
	Plugins:    "MicrosoftEdgePDFPluginPortableDocumentFormatinternal-pdf-viewer1,MicrosoftEdgePDFViewermhjfbmdgcfjbbpaeojofohoefgiehjai1",
	UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/129.0.0.0 Safari/537.36 Edg/129.0.0.0",
	Canvas:     "259ffe69",
	Timezone:   -480,
	Platform:   "Win32",
	URL:        "https://www.skland.com/",
	Referer:    "",
	Resolution: "1920_1080_24_1.25",
	ClientSize: "0_0_1080_1920_1920_1080_1920_1080",
	Status:     "0011",
}

// Builder assembles device profile records.
type Builder struct {
	Organization string
	AppID        string
	Browser      BrowserEnvironment

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// NewBuilder returns a Builder with the default identity and browser template.
func NewBuilder() *Builder {
	return &Builder{
		Organization: DefaultOrganization,
		AppID:        DefaultAppID,
		Browser:      DefaultBrowser,
		Now:          time.Now,
		NewID:        uuid.NewString,
	}
}

// Build returns a fresh device profile record including the session marker and integrity token.
// The record is not obfuscated.
func (b *Builder) Build() *Record {
	now := b.now()
	millis := now.UnixMilli()

	rec := NewRecord()
	rec.Set("plugins", b.Browser.Plugins)
	rec.Set("ua", b.Browser.UserAgent)
	rec.Set("canvas", b.Browser.Canvas)
	rec.Set("timezone", b.Browser.Timezone)
	rec.Set("platform", b.Browser.Platform)
	rec.Set("url", b.Browser.URL)
	rec.Set("referer", b.Browser.Referer)
	rec.Set("res", b.Browser.Resolution)
	rec.Set("clientSize", b.Browser.ClientSize)
	rec.Set("status", b.Browser.Status)
	rec.Set("vpw", b.newID())
	rec.Set("svm", millis)
	rec.Set("trees", b.newID())
	rec.Set("pmf", millis)

	rec.Set("protocol", protocolID)
	rec.Set("organization", b.Organization)
	rec.Set("appId", b.AppID)
	rec.Set("os", OS)
	rec.Set("version", sdkVersion)
	rec.Set("sdkver", sdkVersion)
	rec.Set("box", "")
	rec.Set("rtype", "all")
	rec.Set("smid", SessionMarker(now, b.newID()))
	rec.Set("subVersion", subVersion)
	rec.Set("time", 0)

	rec.Set("tn", IntegrityToken(rec))
	return rec
}

// SessionMarker computes the smid value for the given local time and random nonce.
func SessionMarker(t time.Time, nonce string) string {
	v := t.Format("20060102150405") + md5Hex(nonce) + "00"
	return v + md5Hex("smsk_web_" + v)[:14] + "0"
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

func (b *Builder) newID() string {
	if b.NewID == nil {
		return uuid.NewString()
	}
	return b.NewID()
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s)) //nolint:gosec // protocol mandated
	return hex.EncodeToString(sum[:])
}
