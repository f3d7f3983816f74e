// internal/analyzer/device.go
package analyzer

import (
	"context"
	"fmt"

	"risk-engine/internal/models"
)

type DeviceConfig struct {
	MaxUsersPerDevice int
	SharedPoints      int
	FlaggedPoints     int
	MaliciousIPPoints int
}

func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		MaxUsersPerDevice: 5,
		SharedPoints:      25,
		FlaggedPoints:     40,
		MaliciousIPPoints: 50,
	}
}

// DeviceAnalyzer scores the device fingerprint and the network address.
type DeviceAnalyzer struct {
	history    HistoryReader
	blacklist  Blacklist
	reputation Reputation
	cfg        DeviceConfig
}

func NewDeviceAnalyzer(history HistoryReader, blacklist Blacklist, reputation Reputation, cfg DeviceConfig) *DeviceAnalyzer {
	return &DeviceAnalyzer{
		history:    history,
		blacklist:  blacklist,
		reputation: reputation,
		cfg:        cfg,
	}
}

func (a *DeviceAnalyzer) Factor() models.FactorName { return models.FactorDevice }

func (a *DeviceAnalyzer) Analyze(ctx context.Context, in *Input) (models.RiskFactorResult, error) {
	tx := in.Transaction
	result := models.NewFactorResult(models.FactorDevice)

	if tx.DeviceFingerprint != "" {
		device, err := a.history.DeviceHistory(ctx, tx.DeviceFingerprint)
		if err != nil {
			return result, fmt.Errorf("failed to load device history: %w", err)
		}
		if device != nil {
			users := distinctUsers(device.UserIDs, tx.UserID)
			result.Measure("distinct_users", float64(users))
			if users > a.cfg.MaxUsersPerDevice {
				result.Fire("shared_device", a.cfg.SharedPoints)
			}
			if device.Flagged {
				result.Fire("flagged_device", a.cfg.FlaggedPoints)
			}
		} else {
			result.Attribute("device", "first_seen")
		}
	} else {
		result.Attribute("device", "no_fingerprint")
	}

	blacklisted, err := a.blacklist.IsBlacklisted(ctx, models.BlacklistIP, tx.IPAddress, in.Now)
	if err != nil {
		return result, fmt.Errorf("failed to check ip blacklist: %w", err)
	}
	malicious := blacklisted
	if !malicious {
		intel, err := a.reputation.LookupIP(ctx, tx.IPAddress)
		if err != nil {
			return result, fmt.Errorf("failed to look up ip reputation: %w", err)
		}
		malicious = intel != nil && intel.Malicious
	}
	if malicious {
		result.Fire("malicious_ip", a.cfg.MaliciousIPPoints)
	}

	result.Clamp()
	return result, nil
}

// distinctUsers counts unique user ids on a device, including the current one.
func distinctUsers(userIDs []string, current string) int {
	seen := make(map[string]struct{}, len(userIDs)+1)
	for _, id := range userIDs {
		seen[id] = struct{}{}
	}
	seen[current] = struct{}{}
	return len(seen)
}
