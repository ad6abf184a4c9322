package whitelist

import (
	"strings"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"
)

// Checker provides functionality to check if sender domains are trusted
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new whitelist checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make(map[string]struct{}, len(domains))
	names := make([]string, 0, len(domains))
	for _, domain := range domains {
		d := strings.ToLower(strings.TrimSpace(domain))
		if d == "" {
			continue
		}
		if _, ok := normalized[d]; !ok {
			names = append(names, d)
		}
		normalized[d] = struct{}{}
	}

	if len(names) > 0 && logger != nil {
		logger.Info("Initialized whitelist checker", zap.Strings("domains", names))
	}

	return &Checker{
		domains: normalized,
		logger:  logger,
	}
}

// IsWhitelisted checks if the sender's domain is in the whitelist.
// from may be a bare address or a full header value such as
// "Alice <alice@example.com>". A header listing several addresses is
// whitelisted only when every address is, and one that cannot be parsed
// never is.
func (c *Checker) IsWhitelisted(from string) bool {
	if len(c.domains) == 0 {
		return false
	}

	domains := senderDomains(from)
	if len(domains) == 0 {
		return false
	}

	for _, domain := range domains {
		if _, ok := c.domains[domain]; !ok {
			return false
		}
	}

	if c.logger != nil {
		c.logger.Debug("Domain is whitelisted",
			zap.Strings("domains", domains),
			zap.String("email", from))
	}
	return true
}

// senderDomains returns the lowercased domain of every address in from, or
// nil if any address lacks one or the value does not parse
func senderDomains(from string) []string {
	addresses, err := mail.ParseAddressList(strings.TrimSpace(from))
	if err != nil || len(addresses) == 0 {
		return nil
	}

	domains := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		at := strings.LastIndex(addr.Address, "@")
		if at < 0 || at == len(addr.Address)-1 {
			return nil
		}
		domains = append(domains, strings.ToLower(addr.Address[at+1:]))
	}
	return domains
}
