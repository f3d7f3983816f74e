// internal/reputation/http_provider.go
package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"risk-engine/internal/models"
)

const providerName = "reputation-api"

// HTTPProvider queries the external reputation API:
//
//	GET {base}/ip/{ip}
//	GET {base}/bin/{bin}
//
// Requests are throttled client-side. A 404 means "no data" and yields a
// nil result.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewHTTPProvider(baseURL, apiKey string, rps float64, timeout time.Duration, logger *zap.Logger) *HTTPProvider {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}
}

func (p *HTTPProvider) LookupIP(ctx context.Context, ip string) (*models.IPIntel, error) {
	var apiResp struct {
		Country   string  `json:"country_code"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		ISP       string  `json:"isp"`
		Org       string  `json:"org"`
		Timezone  string  `json:"timezone"`
		Proxy     bool    `json:"is_proxy"`
		VPN       bool    `json:"is_vpn"`
		Tor       bool    `json:"is_tor"`
		Malicious bool    `json:"is_malicious"`
	}

	found, err := p.get(ctx, "/ip/"+url.PathEscape(ip), &apiResp)
	if err != nil || !found {
		return nil, err
	}

	return &models.IPIntel{
		IP:        ip,
		Country:   strings.ToUpper(apiResp.Country),
		Latitude:  apiResp.Latitude,
		Longitude: apiResp.Longitude,
		ISP:       apiResp.ISP,
		Org:       apiResp.Org,
		Timezone:  apiResp.Timezone,
		Proxy:     apiResp.Proxy,
		VPN:       apiResp.VPN,
		Tor:       apiResp.Tor,
		Malicious: apiResp.Malicious,
		Source:    providerName,
	}, nil
}

func (p *HTTPProvider) LookupBIN(ctx context.Context, bin string) (*models.BINIntel, error) {
	var apiResp struct {
		Scheme  string `json:"scheme"`
		Country string `json:"country_code"`
		Flagged bool   `json:"flagged"`
		Penalty int    `json:"risk_penalty"`
	}

	found, err := p.get(ctx, "/bin/"+url.PathEscape(bin), &apiResp)
	if err != nil || !found {
		return nil, err
	}

	return &models.BINIntel{
		BIN:         bin,
		CardNetwork: strings.ToLower(apiResp.Scheme),
		Country:     strings.ToUpper(apiResp.Country),
		Flagged:     apiResp.Flagged,
		Penalty:     apiResp.Penalty,
		Provider:    providerName,
	}, nil
}

func (p *HTTPProvider) get(ctx context.Context, path string, dst interface{}) (bool, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("reputation API error", zap.String("path", path), zap.Int("status", resp.StatusCode))
		return false, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return false, fmt.Errorf("failed to parse response: %w", err)
	}
	return true, nil
}
