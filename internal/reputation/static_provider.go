// internal/reputation/static_provider.go
package reputation

import (
	"context"
	"strings"
	"sync"

	"risk-engine/internal/analyzer"
	"risk-engine/internal/models"
)

const staticSource = "static"

// StaticProvider answers from in-process data sets. It backs development
// setups without an API and serves as the fallback when the API is down.
type StaticProvider struct {
	mu             sync.RWMutex
	ips            map[string]models.IPIntel
	bins           map[string]models.BINIntel
	defaultCountry string
}

// NewStaticProvider returns a provider seeded with the built-in suspicious
// data sets. Unknown IPs geolocate to defaultCountry with no coordinates.
func NewStaticProvider(defaultCountry string) *StaticProvider {
	p := &StaticProvider{
		ips:            make(map[string]models.IPIntel),
		bins:           make(map[string]models.BINIntel),
		defaultCountry: strings.ToUpper(defaultCountry),
	}

	for _, ip := range []string{"185.220.101.1", "185.220.101.2", "199.249.230.1"} {
		p.ips[ip] = models.IPIntel{IP: ip, Country: "DE", ISP: "Tor Exit Relay", Tor: true, Malicious: true, Source: staticSource}
	}
	for _, ip := range []string{"104.238.130.1", "45.77.0.1"} {
		p.ips[ip] = models.IPIntel{IP: ip, Country: "NL", ISP: "Hosting VPN Services", VPN: true, Source: staticSource}
	}
	for _, bin := range []string{"400000", "411111", "555555", "378282"} {
		p.bins[bin] = models.BINIntel{BIN: bin, CardNetwork: analyzer.DetectCardNetwork(bin), Flagged: true, Penalty: 25, Provider: staticSource}
	}
	return p
}

// SetIP replaces the intel for one address.
func (p *StaticProvider) SetIP(intel models.IPIntel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intel.Source = staticSource
	p.ips[intel.IP] = intel
}

func (p *StaticProvider) SetBIN(intel models.BINIntel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	intel.Provider = staticSource
	p.bins[intel.BIN] = intel
}

func (p *StaticProvider) LookupIP(ctx context.Context, ip string) (*models.IPIntel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if intel, ok := p.ips[ip]; ok {
		return &intel, nil
	}
	return &models.IPIntel{IP: ip, Country: p.defaultCountry, Source: staticSource}, nil
}

// LookupBIN returns an unflagged record for unknown BINs.
func (p *StaticProvider) LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if intel, ok := p.bins[bin]; ok {
		return &intel, nil
	}
	return &models.BINIntel{BIN: bin, CardNetwork: analyzer.DetectCardNetwork(bin), Provider: staticSource}, nil
}
