package fingerprint_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"folioscope/internal/fingerprint"
)

const (
	uaMacChrome  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	uaIPhone     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	uaIPad       = "Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
	uaAndroid    = "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36"
	uaWinFirefox = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0"
	uaWinEdge    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.0.0"
)

func TestDeviceClass(t *testing.T) {
	assert.Equal(t, fingerprint.DeviceDesktop, fingerprint.DeviceClass(uaMacChrome))
	assert.Equal(t, fingerprint.DeviceMobile, fingerprint.DeviceClass(uaIPhone))
	assert.Equal(t, fingerprint.DeviceMobile, fingerprint.DeviceClass(uaAndroid))
	assert.Equal(t, fingerprint.DeviceDesktop, fingerprint.DeviceClass(""))

	// iPads match the mobile patterns too; the tablet check must win.
	assert.Equal(t, fingerprint.DeviceTablet, fingerprint.DeviceClass(uaIPad))
}

func TestBrowserFamily(t *testing.T) {
	assert.Equal(t, "Chrome", fingerprint.BrowserFamily(uaMacChrome))
	assert.Equal(t, "Safari", fingerprint.BrowserFamily(uaIPhone))
	assert.Equal(t, "Firefox", fingerprint.BrowserFamily(uaWinFirefox))
	// Edge embeds the Chrome token; the Edge pattern must match first.
	assert.Equal(t, "Edge", fingerprint.BrowserFamily(uaWinEdge))
	assert.Equal(t, fingerprint.UnknownFamily, fingerprint.BrowserFamily("curl/8.6.0"))
}

func TestOSFamily(t *testing.T) {
	assert.Equal(t, "macOS", fingerprint.OSFamily(uaMacChrome))
	assert.Equal(t, "iOS", fingerprint.OSFamily(uaIPhone))
	assert.Equal(t, "Android", fingerprint.OSFamily(uaAndroid))
	assert.Equal(t, "Windows", fingerprint.OSFamily(uaWinFirefox))
	assert.Equal(t, fingerprint.UnknownFamily, fingerprint.OSFamily(""))
}

func TestClassifyReferrer(t *testing.T) {
	cases := map[string]string{
		"":                                      fingerprint.ReferrerDirect,
		"https://www.google.com/search?q=go":    fingerprint.ReferrerGoogle,
		"https://google.de/":                    fingerprint.ReferrerGoogle,
		"https://www.linkedin.com/feed/":        fingerprint.ReferrerLinkedIn,
		"https://lnkd.in/abc":                   fingerprint.ReferrerLinkedIn,
		"https://twitter.com/someone/status/1":  fingerprint.ReferrerTwitter,
		"https://x.com/someone":                 fingerprint.ReferrerTwitter,
		"https://t.co/xyz":                      fingerprint.ReferrerTwitter,
		"https://www.facebook.com/":             fingerprint.ReferrerFacebook,
		"https://news.ycombinator.com/item?id=": fingerprint.ReferrerOther,
		"not a url":                             fingerprint.ReferrerDirect,
	}
	for referrer, expected := range cases {
		assert.Equal(t, expected, fingerprint.ClassifyReferrer(referrer), referrer)
	}
}

func TestParseUTM(t *testing.T) {
	source, medium, campaign := fingerprint.ParseUTM("?utm_source=linkedin&utm_medium=social&utm_campaign=launch")
	assert.Equal(t, "linkedin", source)
	assert.Equal(t, "social", medium)
	assert.Equal(t, "launch", campaign)

	source, medium, campaign = fingerprint.ParseUTM("ref=hn")
	assert.Empty(t, source)
	assert.Empty(t, medium)
	assert.Empty(t, campaign)

	source, _, _ = fingerprint.ParseUTM("")
	assert.Empty(t, source)
}

func TestCollect(t *testing.T) {
	fp := fingerprint.Collect(fingerprint.Input{
		UserAgent:    uaIPhone,
		ReferrerURL:  "https://www.linkedin.com/feed/",
		Query:        "?utm_source=newsletter",
		ScreenWidth:  390,
		ScreenHeight: 844,
	})

	assert.Equal(t, fingerprint.DeviceMobile, fp.DeviceType)
	assert.Equal(t, "Safari", fp.Browser)
	assert.Equal(t, "iOS", fp.OperatingSystem)
	assert.Equal(t, fingerprint.ReferrerLinkedIn, fp.ReferrerSource)
	assert.Equal(t, "newsletter", fp.UTMSource)
	assert.Equal(t, "390x844", fp.ScreenResolution)
}
