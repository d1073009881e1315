package tap

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Matcher decides which URLs the tap captures and which it blocks
type Matcher struct {
	blockedDomains []string
	captures       []*regexp.Regexp
	logger         *zap.Logger
}

// NewMatcher creates a new matcher. capturePatterns are regular
// expressions matched anywhere in the URL; blockedDomains match a host
// or any of its subdomains.
func NewMatcher(blockedDomains []string, capturePatterns []string, logger *zap.Logger) (*Matcher, error) {
	// Normalize domains (lowercase)
	normalizedDomains := make([]string, len(blockedDomains))
	for i, domain := range blockedDomains {
		normalizedDomains[i] = strings.ToLower(strings.TrimSpace(domain))
	}

	captures := make([]*regexp.Regexp, 0, len(capturePatterns))
	for _, pattern := range capturePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid capture pattern %q: %w", pattern, err)
		}
		captures = append(captures, re)
	}

	if logger != nil {
		logger.Info("Initialized tap matcher",
			zap.Strings("blocked_domains", normalizedDomains),
			zap.Int("capture_patterns", len(captures)))
	}

	return &Matcher{
		blockedDomains: normalizedDomains,
		captures:       captures,
		logger:         logger,
	}, nil
}

// Blocked checks if the URL's host is on the block list
func (m *Matcher) Blocked(u *url.URL) bool {
	if len(m.blockedDomains) == 0 {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, domain := range m.blockedDomains {
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			if m.logger != nil {
				m.logger.Debug("Host is blocked",
					zap.String("host", host),
					zap.String("domain", domain))
			}
			return true
		}
	}

	return false
}

// Captures checks if the URL matches any capture pattern
func (m *Matcher) Captures(u *url.URL) bool {
	target := u.String()
	for _, re := range m.captures {
		if re.MatchString(target) {
			return true
		}
	}
	return false
}
