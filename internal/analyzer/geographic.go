// internal/analyzer/geographic.go
package analyzer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"risk-engine/internal/models"
)

type GeographicConfig struct {
	SuspiciousCountries []string
	AnonymizerPatterns  []string
	MaxTravelKM         float64
	TravelWindow        time.Duration
	CountryPoints       int
	TravelPoints        int
	AnonymizerPoints    int
}

func DefaultGeographicConfig() GeographicConfig {
	return GeographicConfig{
		SuspiciousCountries: []string{"KP", "IR", "SY", "CU", "NG", "RU"},
		AnonymizerPatterns:  []string{"vpn", "proxy", "tor", "hosting", "datacenter", "anonymous"},
		MaxTravelKM:         1000,
		TravelWindow:        4 * time.Hour,
		CountryPoints:       40,
		TravelPoints:        25,
		AnonymizerPoints:    20,
	}
}

// GeographicAnalyzer checks the IP's country, travel speed since the last
// transaction, and anonymizing networks.
type GeographicAnalyzer struct {
	history    HistoryReader
	reputation Reputation
	cfg        GeographicConfig
	countries  map[string]bool
}

func NewGeographicAnalyzer(history HistoryReader, reputation Reputation, cfg GeographicConfig) *GeographicAnalyzer {
	countries := make(map[string]bool, len(cfg.SuspiciousCountries))
	for _, c := range cfg.SuspiciousCountries {
		countries[strings.ToUpper(c)] = true
	}
	return &GeographicAnalyzer{
		history:    history,
		reputation: reputation,
		cfg:        cfg,
		countries:  countries,
	}
}

func (a *GeographicAnalyzer) Factor() models.FactorName { return models.FactorGeographic }

func (a *GeographicAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorGeographic)

	intel, err := a.reputation.LookupIP(ctx, tx.IPAddress)
	if err != nil {
		return result, fmt.Errorf("failed to geolocate ip: %w", err)
	}
	if intel == nil {
		return result, fmt.Errorf("no geolocation for ip %s", tx.IPAddress)
	}

	country := strings.ToUpper(intel.Country)
	result.Attribute("country", country)
	result.Attribute("isp", intel.ISP)

	if a.countries[country] {
		result.Fire("suspicious_country", a.cfg.CountryPoints)
	}

	prev, err := a.history.PreviousTransaction(ctx, tx.UserID, tx.CreatedAt, tx.ID)
	if err != nil {
		return result, fmt.Errorf("failed to load previous transaction: %w", err)
	}
	if prev != nil && prev.HasLocation() {
		distance := HaversineKM(*prev.Latitude, *prev.Longitude, intel.Latitude, intel.Longitude)
		elapsed := tx.CreatedAt.Sub(prev.CreatedAt)
		result.Measure("distance_km", math.Round(distance*10)/10)
		result.Measure("hours_since_previous", math.Round(elapsed.Hours()*100)/100)
		if prev.Country != "" {
			result.Attribute("previous_country", prev.Country)
		}
		if distance > a.cfg.MaxTravelKM && elapsed < a.cfg.TravelWindow {
			result.Fire("impossible_travel", a.cfg.TravelPoints)
		}
	}

	if intel.Proxy || intel.VPN || intel.Tor || matchesAny(intel.ISP, a.cfg.AnonymizerPatterns) || matchesAny(intel.Org, a.cfg.AnonymizerPatterns) {
		result.Fire("anonymizing_network", a.cfg.AnonymizerPoints)
	}

	result.Clamp()
	return result, nil
}

const earthRadiusKM = 6371.0

// HaversineKM returns the great-circle distance between two coordinates.
func HaversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(h))
}

// matchesAny reports whether s contains any pattern, case-insensitively.
func matchesAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
