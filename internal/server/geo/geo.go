// Package geo resolves client IP addresses to coarse, human-readable
// locations for the activity log.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// Placeholder locations.
const (
	LocationLocal   = "LAN/local"
	LocationUnknown = "unknown"
)

const (
	cacheTTL        = time.Hour
	maxResponseSize = 64 << 10
)

// Locator looks addresses up against a whois-style JSON endpoint that answers
// in GBK. Results, including failures, are cached for an hour.
type Locator struct {
	endpoint string
	client   *http.Client
	cache    *ristretto.Cache
}

// NewLocator creates a locator querying endpoint. An empty endpoint disables
// remote lookups; only private addresses are then resolved.
func NewLocator(endpoint string, timeout time.Duration) (*Locator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        100000,
		MaxCost:            10000,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Locator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		cache:    cache,
	}, nil
}

// Locate never fails: private addresses map to LocationLocal and any lookup
// problem maps to LocationUnknown.
func (l *Locator) Locate(ctx context.Context, ip string) string {
	if IsPrivate(ip) {
		return LocationLocal
	}
	if l.endpoint == "" {
		return LocationUnknown
	}
	if v, ok := l.cache.Get(ip); ok {
		return v.(string)
	}

	loc, err := l.lookup(ctx, ip)
	if err != nil {
		slog.Warn("ip location lookup failed", "ip", ip, "error", err)
		loc = LocationUnknown
	}
	l.cache.SetWithTTL(ip, loc, 1, cacheTTL)
	return loc
}

// Close releases the cache.
func (l *Locator) Close() {
	l.cache.Close()
}

type lookupResponse struct {
	Addr string `json:"addr"`
	Pro  string `json:"pro"`
	City string `json:"city"`
}

func (l *Locator) lookup(ctx context.Context, ip string) (string, error) {
	u, err := url.Parse(l.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid lookup url: %w", err)
	}
	q := u.Query()
	q.Set("ip", ip)
	q.Set("json", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	body, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	var data lookupResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(body))), &data); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if addr := strings.TrimSpace(data.Addr); addr != "" {
		return addr, nil
	}
	if loc := strings.TrimSpace(data.Pro + " " + data.City); loc != "" {
		return loc, nil
	}
	return LocationUnknown, nil
}

// IsPrivate reports whether ip is loopback, link-local, private or not an IP
// at all ("localhost").
func IsPrivate(ip string) bool {
	if ip == "localhost" {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	return parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsLinkLocalUnicast() || parsed.IsUnspecified()
}
