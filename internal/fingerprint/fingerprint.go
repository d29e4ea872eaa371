// Package fingerprint classifies the browsing environment at session start:
// device class, browser and OS family, referrer source, and the UTM triple.
// Everything here is pure and deterministic; unknown inputs degrade to
// desktop/Unknown, never to an error, so classification can never block the
// pipeline.
package fingerprint

import (
	_ "embed"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device classes
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
)

// Referrer classifications
const (
	ReferrerDirect   = "direct"
	ReferrerGoogle   = "google"
	ReferrerLinkedIn = "linkedin"
	ReferrerTwitter  = "twitter"
	ReferrerFacebook = "facebook"
	ReferrerOther    = "other"
)

// UnknownFamily is the fallback browser/OS family.
const UnknownFamily = "Unknown"

//go:embed patterns.yml
var patternsFile []byte

type patternEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type patternDatabase struct {
	Devices struct {
		Tablet []patternEntry `yaml:"tablet"`
		Mobile []patternEntry `yaml:"mobile"`
	} `yaml:"devices"`
	Browsers []patternEntry `yaml:"browsers"`
	OSs      []patternEntry `yaml:"oss"`
}

type compiledEntry struct {
	regex *pcre.Regexp
	name  string
}

type classifier struct {
	tablet   []*pcre.Regexp
	mobile   []*pcre.Regexp
	browsers []compiledEntry
	oss      []compiledEntry
}

var (
	instance *classifier
	once     sync.Once
)

func getClassifier() *classifier {
	once.Do(func() {
		instance = &classifier{}

		var db patternDatabase
		if err := yaml.Unmarshal(patternsFile, &db); err != nil {
			fmt.Printf("Error parsing patterns.yml: %v\n", err)
			return
		}

		compile := func(entries []patternEntry) []compiledEntry {
			out := make([]compiledEntry, 0, len(entries))
			for _, entry := range entries {
				regex, err := pcre.Compile(entry.Regex)
				if err != nil {
					continue
				}
				out = append(out, compiledEntry{regex: regex, name: entry.Name})
			}
			return out
		}

		for _, entry := range compile(db.Devices.Tablet) {
			instance.tablet = append(instance.tablet, entry.regex)
		}
		for _, entry := range compile(db.Devices.Mobile) {
			instance.mobile = append(instance.mobile, entry.regex)
		}
		instance.browsers = compile(db.Browsers)
		instance.oss = compile(db.OSs)
	})
	return instance
}

// Fingerprint is the fixed classification record produced for one session.
type Fingerprint struct {
	DeviceType       string
	Browser          string
	OperatingSystem  string
	ReferrerSource   string
	UTMSource        string
	UTMMedium        string
	UTMCampaign      string
	ScreenResolution string
}

// Input is the browsing environment a fingerprint is derived from.
type Input struct {
	UserAgent    string
	ReferrerURL  string
	Query        string
	ScreenWidth  int
	ScreenHeight int
}

// Collect derives the full fingerprint from the browsing environment.
func Collect(input Input) Fingerprint {
	source, medium, campaign := ParseUTM(input.Query)

	resolution := ""
	if input.ScreenWidth > 0 && input.ScreenHeight > 0 {
		resolution = fmt.Sprintf("%dx%d", input.ScreenWidth, input.ScreenHeight)
	}

	return Fingerprint{
		DeviceType:       DeviceClass(input.UserAgent),
		Browser:          BrowserFamily(input.UserAgent),
		OperatingSystem:  OSFamily(input.UserAgent),
		ReferrerSource:   ClassifyReferrer(input.ReferrerURL),
		UTMSource:        source,
		UTMMedium:        medium,
		UTMCampaign:      campaign,
		ScreenResolution: resolution,
	}
}

// DeviceClass classifies a user agent as desktop, mobile or tablet. Tablet
// patterns are checked first; tablets must not fall through to mobile.
func DeviceClass(userAgent string) string {
	c := getClassifier()
	for _, regex := range c.tablet {
		if regex.MatchString(userAgent) {
			return DeviceTablet
		}
	}
	for _, regex := range c.mobile {
		if regex.MatchString(userAgent) {
			return DeviceMobile
		}
	}
	return DeviceDesktop
}

// BrowserFamily returns the browser family for a user agent, Unknown when no
// pattern matches.
func BrowserFamily(userAgent string) string {
	for _, entry := range getClassifier().browsers {
		if entry.regex.MatchString(userAgent) {
			return entry.name
		}
	}
	return UnknownFamily
}

// OSFamily returns the operating system family for a user agent, Unknown
// when no pattern matches.
func OSFamily(userAgent string) string {
	for _, entry := range getClassifier().oss {
		if entry.regex.MatchString(userAgent) {
			return entry.name
		}
	}
	return UnknownFamily
}

// referrerSources maps a classification to the hostname fragments that
// select it, checked in order.
var referrerSources = []struct {
	source    string
	fragments []string
}{
	{ReferrerGoogle, []string{"google."}},
	{ReferrerLinkedIn, []string{"linkedin.com", "lnkd.in"}},
	{ReferrerTwitter, []string{"twitter.com", "x.com", "t.co"}},
	{ReferrerFacebook, []string{"facebook.com", "fb.com"}},
}

// ClassifyReferrer buckets a referrer URL into a traffic source. An empty or
// unparseable referrer is direct traffic.
func ClassifyReferrer(referrerURL string) string {
	if referrerURL == "" {
		return ReferrerDirect
	}

	parsed, err := url.Parse(referrerURL)
	if err != nil {
		return ReferrerDirect
	}
	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return ReferrerDirect
	}
	hostname = strings.TrimPrefix(hostname, "www.")

	for _, candidate := range referrerSources {
		for _, fragment := range candidate.fragments {
			if hostname == strings.TrimSuffix(fragment, ".") ||
				strings.HasPrefix(hostname, fragment) ||
				strings.HasSuffix(hostname, "."+fragment) {
				return candidate.source
			}
		}
	}
	return ReferrerOther
}

// ParseUTM extracts the UTM triple from a raw query string. Missing
// parameters come back empty, never an error.
func ParseUTM(query string) (source, medium, campaign string) {
	values, err := url.ParseQuery(strings.TrimPrefix(query, "?"))
	if err != nil {
		return "", "", ""
	}
	return values.Get("utm_source"), values.Get("utm_medium"), values.Get("utm_campaign")
}
