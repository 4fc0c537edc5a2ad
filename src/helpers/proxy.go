package helpers

import (
	"net/url"
	"strings"
	"sync"

	"trade-stream/src/logger"
)

// -----------------------------------------------------------------------------

// ProxyManager rotates through the proxies listed in config. Exchange APIs
// rate-limit aggressively, so the network layer can cycle egress addresses.
type ProxyManager struct {
	proxies   []string
	userAgent string
	index     int
	mu        sync.Mutex
	logger    *logger.Logger
}

// -----------------------------------------------------------------------------

func NewProxyManager(proxies []string, userAgent string) *ProxyManager {
	// Format first: bare host:port entries do not parse as URLs until a
	// scheme is added, and the whole point of FormatProxy is to repair them.
	var validProxies []string
	for _, p := range proxies {
		formatted := FormatProxy(p)
		if ValidateProxy(formatted) {
			validProxies = append(validProxies, formatted)
		}
	}

	if userAgent == "" {
		userAgent = "trade-stream/1.0"
	}

	return &ProxyManager{
		proxies:   validProxies,
		userAgent: userAgent,
		logger:    logger.NewLogger("", "ProxyManager"),
	}
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetCurrentProxy() (string, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return "", nil
	}
	return pm.proxies[pm.index], nil
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) RotateProxy() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) <= 1 {
		return
	}

	pm.index = (pm.index + 1) % len(pm.proxies)
	pm.logger.Info("Rotating proxy to: %s", pm.proxies[pm.index])
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) GetUserAgent() string {
	return pm.userAgent
}

// -----------------------------------------------------------------------------

func (pm *ProxyManager) HasProxies() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies) > 0
}

// -----------------------------------------------------------------------------

// ValidateProxy checks if a proxy string is roughly valid. Callers run
// FormatProxy first so a scheme is always present here.
func ValidateProxy(proxyStr string) bool {
	u, err := url.Parse(proxyStr)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "socks5") && u.Host != ""
}

// -----------------------------------------------------------------------------

// FormatProxy ensures the proxy has a scheme.
func FormatProxy(proxyStr string) string {
	if !strings.Contains(proxyStr, "://") {
		return "http://" + proxyStr
	}
	return proxyStr
}
