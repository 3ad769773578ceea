package services

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// GeoResolver maps a client IP to an ISO country code, or "" when unknown.
type GeoResolver interface {
	Country(ip string) string
}

// GeoIPResolver reads a MaxMind country or city database.
type GeoIPResolver struct {
	reader *geoip2.Reader
}

func NewGeoIPResolver(path string) (*GeoIPResolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &GeoIPResolver{reader: reader}, nil
}

func (r *GeoIPResolver) Country(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	record, err := r.reader.Country(parsed)
	if err != nil {
		return ""
	}
	return record.Country.IsoCode
}

func (r *GeoIPResolver) Close() error {
	return r.reader.Close()
}
