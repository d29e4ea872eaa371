// Package geo resolves client IPs to a country code and an organization
// label using MaxMind GeoLite2 databases. Both databases are optional:
// missing files disable the lookup and every session falls into the unknown
// buckets instead of failing the pipeline.
package geo

import (
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Fallback buckets for failed or unavailable resolution.
const (
	UnknownCountry      = "__unknown_country__"
	UnknownOrganization = "unknown"
)

// Resolver is the lookup capability the aggregation side depends on.
// Implementations must never return an error: unresolvable IPs map to the
// unknown buckets.
type Resolver interface {
	Country(ip string) string
	Organization(ip string) string
}

// MaxMindResolver resolves against the GeoLite2 Country and ASN databases.
type MaxMindResolver struct {
	mu        sync.RWMutex
	countryDB *geoip2.Reader
	asnDB     *geoip2.Reader
	logger    *slog.Logger

	countryPath string
	asnPath     string
}

// NewMaxMindResolver opens the configured databases. Either path may be
// empty or point at a missing file; the corresponding lookup is then
// disabled.
func NewMaxMindResolver(countryPath, asnPath string, logger *slog.Logger) *MaxMindResolver {
	r := &MaxMindResolver{
		logger:      logger,
		countryPath: countryPath,
		asnPath:     asnPath,
	}
	r.countryDB = r.open(countryPath, "GeoLite2-Country")
	r.asnDB = r.open(asnPath, "GeoLite2-ASN")
	return r
}

func (r *MaxMindResolver) open(path, kind string) *geoip2.Reader {
	if path == "" {
		if r.logger != nil {
			r.logger.Debug("GeoIP database path not configured - lookups disabled",
				slog.String("db_type", kind))
		}
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if r.logger != nil {
			r.logger.Info("GeoLite2 database not found - lookups disabled",
				slog.String("db_type", kind),
				slog.String("path", path),
				slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		}
		return nil
	} else if err != nil {
		if r.logger != nil {
			r.logger.Warn("Error checking GeoLite2 database file",
				slog.String("path", path), slog.Any("error", err))
		}
		return nil
	}

	db, err := geoip2.Open(path)
	if err != nil {
		if r.logger != nil {
			r.logger.Error("Failed to open GeoLite2 database",
				slog.String("path", path), slog.Any("error", err))
		}
		return nil
	}

	if r.logger != nil {
		r.logger.Info("GeoLite2 database initialized",
			slog.String("db_type", kind), slog.String("path", path))
	}
	return db
}

// Country returns the ISO alpha-2 country code for an IP, or UnknownCountry.
func (r *MaxMindResolver) Country(ip string) string {
	r.mu.RLock()
	db := r.countryDB
	r.mu.RUnlock()
	if db == nil {
		return UnknownCountry
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return UnknownCountry
	}

	record, err := db.Country(parsed)
	if err != nil || record.Country.IsoCode == "" {
		return UnknownCountry
	}
	return record.Country.IsoCode
}

// Organization returns the autonomous system organization for an IP, or
// UnknownOrganization. The ASN organization is the closest available proxy
// for "which company is this visitor browsing from".
func (r *MaxMindResolver) Organization(ip string) string {
	r.mu.RLock()
	db := r.asnDB
	r.mu.RUnlock()
	if db == nil {
		return UnknownOrganization
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return UnknownOrganization
	}

	record, err := db.ASN(parsed)
	if err != nil || record.AutonomousSystemOrganization == "" {
		return UnknownOrganization
	}
	return record.AutonomousSystemOrganization
}

// Reload reopens both databases from disk. Call after downloading fresh
// copies.
func (r *MaxMindResolver) Reload() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.countryDB != nil {
		r.countryDB.Close()
	}
	if r.asnDB != nil {
		r.asnDB.Close()
	}
	r.countryDB = r.open(r.countryPath, "GeoLite2-Country")
	r.asnDB = r.open(r.asnPath, "GeoLite2-ASN")
}

// Close releases both database readers.
func (r *MaxMindResolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.countryDB != nil {
		r.countryDB.Close()
		r.countryDB = nil
	}
	if r.asnDB != nil {
		r.asnDB.Close()
		r.asnDB = nil
	}
}

// NullResolver resolves everything to the unknown buckets. Used when no
// databases are configured and in tests.
type NullResolver struct{}

func (NullResolver) Country(string) string      { return UnknownCountry }
func (NullResolver) Organization(string) string { return UnknownOrganization }
