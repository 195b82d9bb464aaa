// Package ipgeo tags requests with the client's country using a MaxMind
// database.
package ipgeo

import (
	"fmt"
	"net/netip"

	"github.com/oschwald/maxminddb-golang/v2"
)

// Labels returned for addresses that are not looked up.
const (
	Local     = "local"
	Tailscale = "tailscale"
)

// Checker resolves IP addresses to ISO 3166-1 alpha-2 country codes.
//
// A nil Checker only classifies non-routable addresses.
type Checker struct {
	reader *maxminddb.Reader
}

// Open opens an MMDB country database.
func Open(path string) (*Checker, error) {
	r, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database: %w", err)
	}
	return &Checker{reader: r}, nil
}

// Close releases the database.
func (c *Checker) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// tailscalePrefix is the CGNAT range 100.64.0.0/10.
var tailscalePrefix = netip.MustParsePrefix("100.64.0.0/10")

// CountryCode returns the country code for ip, Local for loopback, private,
// link-local and unspecified addresses, Tailscale for CGNAT addresses, and
// "" when unknown.
func (c *Checker) CountryCode(ip string) string {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	switch {
	case addr.IsLoopback(), addr.IsPrivate(), addr.IsUnspecified(), addr.IsLinkLocalUnicast():
		return Local
	case tailscalePrefix.Contains(addr):
		return Tailscale
	case c == nil || c.reader == nil:
		return ""
	}
	var rec countryRecord
	if err := c.reader.Lookup(addr).Decode(&rec); err != nil {
		return ""
	}
	return rec.Country.ISOCode
}
