package geoip

import (
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Provider resolves IP addresses to ISO country codes.
type Provider struct {
	db *geoip2.Reader
}

// Open loads the database at path.
func Open(path string) (*Provider, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}

	return &Provider{db: db}, nil
}

// Close releases the database. Safe on a nil Provider.
func (p *Provider) Close() error {
	if p == nil {
		return nil
	}
	return p.db.Close()
}

// CountryCode returns the ISO code ("US", "DE") for ip, or "" when the address is
// invalid, unknown, or the provider is nil.
func (p *Provider) CountryCode(ip string) string {
	if p == nil {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	record, err := p.db.Country(parsed)
	if err != nil {
		return ""
	}

	return record.Country.IsoCode
}
